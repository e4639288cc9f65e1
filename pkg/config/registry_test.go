package config

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/rs/zerolog"
)

type driverConn struct {
	fd int
}

type catalog struct {
	Items []string
}

func TestBuildRegistry(t *testing.T) {
	disabled := false
	cfg := &Config{
		Ignore:          []string{classify.QualifiedName(reflect.TypeFor[driverConn]())},
		Share:           []string{classify.QualifiedName(reflect.TypeFor[*catalog]())},
		EventConvention: &disabled,
		DisablePolicies: []string{"host-handles"},
	}

	base := classify.DefaultRegistry()
	registry, engine, err := BuildRegistry(context.Background(), cfg, BuildOptions{Base: base, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	if engine == nil {
		t.Fatal("Expected a policy engine")
	}

	tests := []struct {
		name string
		typ  reflect.Type
		want classify.Category
	}{
		{"ignored by name", reflect.TypeFor[driverConn](), classify.Ignored},
		{"pointer to ignored", reflect.TypeFor[*driverConn](), classify.Ignored},
		{"shared by name", reflect.TypeFor[*catalog](), classify.SafeShare},
		{"value of shared pointer is copied", reflect.TypeFor[catalog](), classify.ValueAggregate},
		{"built-in table kept", reflect.TypeFor[sync.Mutex](), classify.Ignored},
		{"disabled policy", reflect.TypeFor[*sql.DB](), classify.ReferenceAggregate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify.Classify(registry, tt.typ); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if registry.EventConvention() {
		t.Error("Expected event convention to be disabled")
	}
	if classify.Classify(base, reflect.TypeFor[driverConn]()) == classify.Ignored {
		t.Error("Expected base registry to be untouched")
	}
}

func TestBuildRegistry_Defaults(t *testing.T) {
	registry, _, err := BuildRegistry(context.Background(), nil, BuildOptions{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	if got := classify.Classify(registry, reflect.TypeFor[*sql.DB]()); got != classify.Ignored {
		t.Errorf("Expected host-handles policy to ignore *sql.DB, got %s", got)
	}
	if !registry.EventConvention() {
		t.Error("Expected event convention to stay enabled")
	}
}

func TestBuildRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"unknown policy", &Config{EnablePolicies: []string{"missing"}}},
		{"missing policy path", &Config{Policies: []string{filepath.Join(t.TempDir(), "missing")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := BuildRegistry(context.Background(), tt.cfg, BuildOptions{Logger: zerolog.Nop()}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestBuildRegistry_PolicyFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "catalog.rego", `package deepclone.classify.catalog

import rego.v1

category := "safe" if input.name == "catalog"
`)

	registry, _, err := BuildRegistry(context.Background(), &Config{Policies: []string{dir}}, BuildOptions{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	if got := classify.Classify(registry, reflect.TypeFor[catalog]()); got != classify.SafeShare {
		t.Errorf("Expected %s, got %s", classify.SafeShare, got)
	}
}

func TestTelemetryConfig(t *testing.T) {
	rate := 0.25
	metrics := false
	cfg := &Config{Telemetry: TelemetryConfig{
		ServiceName:    "bench",
		LogLevel:       "warn",
		LogFormat:      "json",
		TraceExporter:  "stdout",
		SamplingRate:   &rate,
		MetricsEnabled: &metrics,
		MetricsAddress: ":9191",
	}}

	tc := cfg.TelemetryConfig()
	if tc.ServiceName != "bench" || tc.Logging.Level != "warn" || tc.Logging.Format != "json" {
		t.Errorf("Unexpected logging settings: %+v", tc.Logging)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "stdout" || tc.Tracing.SamplingRate != 0.25 {
		t.Errorf("Unexpected tracing settings: %+v", tc.Tracing)
	}
	if tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9191" {
		t.Errorf("Unexpected metrics settings: %+v", tc.Metrics)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("Expected valid telemetry config, got %v", err)
	}

	defaults := (&Config{}).TelemetryConfig()
	if defaults.Tracing.Enabled {
		t.Error("Expected tracing to stay disabled by default")
	}
}

func TestTelemetryConfig_EnvironmentProfiles(t *testing.T) {
	tests := []struct {
		name      string
		telemetry TelemetryConfig
		level     string
		format    string
		tracing   bool
		exporter  string
	}{
		{
			name:      "development profile",
			telemetry: TelemetryConfig{Environment: "development"},
			level:     "debug",
			format:    "console",
			tracing:   true,
			exporter:  "stdout",
		},
		{
			name:      "development with overrides",
			telemetry: TelemetryConfig{Environment: "development", LogLevel: "warn", TraceExporter: "none"},
			level:     "warn",
			format:    "console",
			tracing:   true,
			exporter:  "none",
		},
		{
			name:      "production without collector",
			telemetry: TelemetryConfig{Environment: "production"},
			level:     "info",
			format:    "json",
			tracing:   false,
			exporter:  "otlp",
		},
		{
			name:      "production with collector",
			telemetry: TelemetryConfig{Environment: "production", TraceEndpoint: "collector:4317"},
			level:     "info",
			format:    "json",
			tracing:   true,
			exporter:  "otlp",
		},
		{
			name:      "custom environment keeps defaults",
			telemetry: TelemetryConfig{Environment: "staging"},
			level:     "info",
			format:    "console",
			tracing:   false,
			exporter:  "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telemetry: tt.telemetry}
			tc := cfg.TelemetryConfig()

			if tc.Environment != tt.telemetry.Environment {
				t.Errorf("Expected environment %q, got %q", tt.telemetry.Environment, tc.Environment)
			}
			if tc.Logging.Level != tt.level {
				t.Errorf("Expected log level %q, got %q", tt.level, tc.Logging.Level)
			}
			if tc.Logging.Format != tt.format {
				t.Errorf("Expected log format %q, got %q", tt.format, tc.Logging.Format)
			}
			if tc.Tracing.Enabled != tt.tracing {
				t.Errorf("Expected tracing enabled %v, got %v", tt.tracing, tc.Tracing.Enabled)
			}
			if tc.Tracing.Exporter != tt.exporter {
				t.Errorf("Expected exporter %q, got %q", tt.exporter, tc.Tracing.Exporter)
			}
			if err := tc.Validate(); err != nil {
				t.Errorf("Expected valid telemetry config, got %v", err)
			}
		})
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deepclone.yaml", "share: []\n")

	reloads := make(chan Reload, 4)
	w := NewWatcher([]string{path}, BuildOptions{Logger: zerolog.Nop()}, func(r Reload) {
		reloads <- r
	})
	w.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Close()

	writeFile(t, dir, "deepclone.yaml", "ignore:\n  - "+classify.QualifiedName(reflect.TypeFor[catalog]())+"\n")

	select {
	case r := <-reloads:
		if got := classify.Classify(r.Registry, reflect.TypeFor[catalog]()); got != classify.Ignored {
			t.Errorf("Expected reloaded registry to ignore catalog, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcher_ReloadsOnPolicyChange(t *testing.T) {
	dir := t.TempDir()
	policyDir := filepath.Join(dir, "policies")
	if err := os.Mkdir(policyDir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writePolicy := func(answer string) {
		t.Helper()
		writeFile(t, policyDir, "catalog.rego", "package deepclone.classify.catalog\n\nimport rego.v1\n\ncategory := \""+answer+"\" if input.name == \"catalog\"\n")
	}
	writePolicy("safe")
	path := writeFile(t, dir, "deepclone.yaml", "policies:\n  - "+policyDir+"\n")

	reloads := make(chan Reload, 4)
	w := NewWatcher([]string{path}, BuildOptions{Logger: zerolog.Nop()}, func(r Reload) {
		reloads <- r
	})
	w.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Close()

	writePolicy("ignored")

	select {
	case r := <-reloads:
		if got := classify.Classify(r.Registry, reflect.TypeFor[catalog]()); got != classify.Ignored {
			t.Errorf("Expected edited policy to ignore catalog, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcher_InvalidReloadKeepsCallbackQuiet(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deepclone.yaml", "telemetry:\n  log_level: loud\n")

	called := false
	w := NewWatcher([]string{path}, BuildOptions{Logger: zerolog.Nop()}, func(Reload) {
		called = true
	})

	if err := w.Reload(context.Background()); err == nil {
		t.Error("Expected reload error")
	}
	if called {
		t.Error("Expected callback not to run for an invalid configuration")
	}
}

func TestWatcher_Relevant(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.yaml")
	w := NewWatcher([]string{file, filepath.Join(dir, "conf.d")}, BuildOptions{}, nil)

	tests := []struct {
		name string
		want bool
	}{
		{file, true},
		{filepath.Join(dir, "b.yaml"), false},
		{filepath.Join(dir, "conf.d", "c.cue"), true},
		{filepath.Join(dir, "conf.d", "notes.txt"), false},
	}

	for _, tt := range tests {
		if got := w.relevant(tt.name); got != tt.want {
			t.Errorf("relevant(%s): expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestWatcher_RelevantPolicies(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "deepclone.yaml", "share: []\n")
	policies := filepath.Join(dir, "policies")
	single := filepath.Join(dir, "extra", "single.rego")

	w := NewWatcher([]string{file}, BuildOptions{}, nil)
	w.watchPolicies([]string{policies, single})

	tests := []struct {
		name string
		want bool
	}{
		{filepath.Join(policies, "a.rego"), true},
		{filepath.Join(policies, "nested", "b.json"), true},
		{filepath.Join(policies, "notes.txt"), false},
		{single, true},
		{filepath.Join(dir, "extra", "other.rego"), false},
		{filepath.Join(dir, "stray.rego"), false},
	}

	for _, tt := range tests {
		if got := w.relevant(tt.name); got != tt.want {
			t.Errorf("relevant(%s): expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
