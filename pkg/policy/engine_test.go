package policy

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"syscall"
	"testing"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
)

type ImmutableSettings struct {
	Name string
}

type plainSettings struct {
	Name string
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger, nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func describe[T any]() classify.TypeInfo {
	return classify.Describe(reflect.TypeFor[T]())
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != 2 {
		t.Fatalf("Expected 2 built-in policies, got %d", len(policies))
	}

	expected := map[string]bool{
		"host-handles":    true,
		"immutable-names": false,
	}
	for _, p := range policies {
		enabled, ok := expected[p.Name]
		if !ok {
			t.Errorf("Unexpected built-in policy: %s", p.Name)
			continue
		}
		if p.Enabled != enabled {
			t.Errorf("Expected %s enabled=%v, got %v", p.Name, enabled, p.Enabled)
		}
	}
}

func TestResolve_HostHandles(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name     string
		info     classify.TypeInfo
		expectOK bool
	}{
		{"tcp conn", describe[net.TCPConn](), true},
		{"tcp listener", describe[net.TCPListener](), true},
		{"sql db", describe[sql.DB](), true},
		{"sql tx", describe[sql.Tx](), true},
		{"exec cmd", describe[exec.Cmd](), true},
		{"syscall attrs", describe[syscall.SysProcAttr](), true},
		{"pointer is left to the registry", describe[*net.TCPConn](), false},
		{"plain struct", describe[plainSettings](), false},
		{"string", describe[string](), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, ok := eng.Resolve(tt.info)
			if ok != tt.expectOK {
				t.Fatalf("Expected ok=%v, got %v", tt.expectOK, ok)
			}
			if ok && category != classify.Ignored {
				t.Errorf("Expected %s, got %s", classify.Ignored, category)
			}
		})
	}
}

func TestResolve_RegistryIntegration(t *testing.T) {
	eng := newTestEngine(t)
	registry := classify.DefaultRegistry().AddResolver(eng)

	if got := classify.Classify(registry, reflect.TypeFor[*sql.DB]()); got != classify.Ignored {
		t.Errorf("Expected *sql.DB to be %s, got %s", classify.Ignored, got)
	}
	if got := classify.Classify(registry, reflect.TypeFor[*plainSettings]()); got != classify.ReferenceAggregate {
		t.Errorf("Expected *plainSettings to be %s, got %s", classify.ReferenceAggregate, got)
	}
}

func TestEnablePolicy_ImmutableNames(t *testing.T) {
	eng := newTestEngine(t)
	info := describe[ImmutableSettings]()

	if _, ok := eng.Resolve(info); ok {
		t.Fatal("Expected no answer while immutable-names is disabled")
	}

	if err := eng.EnablePolicy("immutable-names"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	category, ok := eng.Resolve(info)
	if !ok || category != classify.SafeShare {
		t.Errorf("Expected %s, got %s (ok=%v)", classify.SafeShare, category, ok)
	}

	if err := eng.DisablePolicy("immutable-names"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	if _, ok := eng.Resolve(info); ok {
		t.Error("Expected memoized answer to be dropped after disabling")
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestEvaluate_IgnoredWinsOverSafe(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "share-conns",
		Enabled: true,
		Rego: `package deepclone.classify.share_conns

import rego.v1

category := "safe" if input.pkg_path == "net"
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), describe[net.TCPConn]())
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}

	if result.Category != "ignored" {
		t.Errorf("Expected ignored, got %q", result.Category)
	}
	if len(result.Decisions) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(result.Decisions))
	}
	if result.Decisions[0].Policy != "host-handles" || result.Decisions[1].Policy != "share-conns" {
		t.Errorf("Expected decisions in name order, got %+v", result.Decisions)
	}

	result, err = eng.Evaluate(context.Background(), describe[net.IPNet]())
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if result.Category != "safe" {
		t.Errorf("Expected safe, got %q", result.Category)
	}
}

func TestEvaluate_BadAnswers(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.AddPolicy(ctx, Policy{
		Name:    "not-a-string",
		Enabled: true,
		Rego: `package deepclone.classify.not_a_string

import rego.v1

category := 42 if input.kind == "struct"
`,
	}); err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}
	if err := eng.AddPolicy(ctx, Policy{
		Name:    "unknown-category",
		Enabled: true,
		Rego: `package deepclone.classify.unknown_category

import rego.v1

category := "frozen" if input.kind == "struct"
`,
	}); err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	result, err := eng.Evaluate(ctx, describe[plainSettings]())
	if err != nil {
		t.Fatalf("Expected partial failure to return no error, got %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 policy error, got %v", result.Errors)
	}
	if result.Category != "" || len(result.Decisions) != 0 {
		t.Errorf("Expected no decision, got %q %+v", result.Category, result.Decisions)
	}

	if _, ok := eng.Resolve(describe[plainSettings]()); ok {
		t.Error("Expected no answer")
	}
}

func TestAddPolicy_Invalid(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name   string
		policy Policy
	}{
		{"missing name", Policy{Rego: "package x\n"}},
		{"syntax error", Policy{Name: "broken", Rego: "package x\n\ncategory := if {"}},
		{"empty module", Policy{Name: "empty", Rego: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.AddPolicy(context.Background(), tt.policy); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if len(eng.ListPolicies()) != 2 {
		t.Errorf("Expected failed policies not to be stored, got %d", len(eng.ListPolicies()))
	}
}

func TestResolve_MemoDroppedOnChange(t *testing.T) {
	eng := newTestEngine(t)
	info := describe[plainSettings]()

	if _, ok := eng.Resolve(info); ok {
		t.Fatal("Expected no answer before the policy exists")
	}

	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "ignore-plain",
		Enabled: true,
		Rego: `package deepclone.classify.ignore_plain

import rego.v1

category := "ignored" if input.name == "plainSettings"
`,
	})
	if err != nil {
		t.Fatalf("Failed to add policy: %v", err)
	}

	category, ok := eng.Resolve(info)
	if !ok || category != classify.Ignored {
		t.Errorf("Expected %s, got %s (ok=%v)", classify.Ignored, category, ok)
	}
}

func TestLoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	tmpDir := t.TempDir()

	content := `package deepclone.classify.plain

import rego.v1

# Ignores the plain settings type.
category := "ignored" if input.name == "plainSettings"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "plain.rego"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{tmpDir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	p, err := eng.GetPolicy("plain")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if p.Description != "Ignores the plain settings type." {
		t.Errorf("Unexpected description: %q", p.Description)
	}

	if category, ok := eng.Resolve(describe[plainSettings]()); !ok || category != classify.Ignored {
		t.Errorf("Expected %s, got %s (ok=%v)", classify.Ignored, category, ok)
	}
}

func TestEvaluate_RecordsMetrics(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	eng, err := NewEngine(zerolog.Nop(), metrics)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	eng.Resolve(describe[net.TCPConn]())

	families, err := metrics.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "deepclone_policy_evaluations_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected policy evaluation metric")
	}
}

func TestLoadPolicies_SharedLoaderSeesEdits(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	path := filepath.Join(dir, "edited.rego")

	write := func(answer string) {
		t.Helper()
		content := "package deepclone.classify.edited\n\nimport rego.v1\n\ncategory := \"" + answer + "\" if input.name == \"plainSettings\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}

	build := func() *Engine {
		t.Helper()
		eng, err := NewEngine(zerolog.Nop(), nil, WithLoader(loader))
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
			t.Fatalf("Failed to load policies: %v", err)
		}
		return eng
	}

	write("safe")
	if category, ok := build().Resolve(describe[plainSettings]()); !ok || category != classify.SafeShare {
		t.Errorf("Expected %s, got %s (ok=%v)", classify.SafeShare, category, ok)
	}

	write("ignored")
	if category, ok := build().Resolve(describe[plainSettings]()); !ok || category != classify.Ignored {
		t.Errorf("Expected %s after edit, got %s (ok=%v)", classify.Ignored, category, ok)
	}
}
