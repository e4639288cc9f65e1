package classify

import (
	"reflect"
	"testing"
)

type widget struct {
	OnChange    func(string)
	onClose     func()
	Listeners   []func()
	changeHooks []func()
	Tagged      func()     `deepclone:"event"`
	OnDemand    func() int `deepclone:"shallow"`
	Loader      func() int
	Once        string
	Online      func()
	Skipped     *int `deepclone:"-"`
	Untouched   *int `deepclone:"shallow,omitempty"`
	byName      map[string]func()
	keyHandlers map[string]func()
}

func field(t *testing.T, name string) reflect.StructField {
	t.Helper()
	f, ok := reflect.TypeFor[widget]().FieldByName(name)
	if !ok {
		t.Fatalf("field %s not found", name)
	}
	return f
}

func TestIsEventField(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		field string
		want  bool
	}{
		{"OnChange", true},
		{"onClose", true},
		{"Listeners", true},
		{"changeHooks", false},
		{"Tagged", true},
		{"OnDemand", false},
		{"Loader", false},
		{"Once", false},
		{"Online", false},
		{"byName", false},
		{"keyHandlers", true},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := IsEventField(r, field(t, tt.field)); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsEventField_ConventionDisabled(t *testing.T) {
	r := NewRegistry().SetEventConvention(false)

	if IsEventField(r, field(t, "OnChange")) {
		t.Error("Expected naming convention to be off")
	}
	if !IsEventField(r, field(t, "Tagged")) {
		t.Error("Expected tagged field to stay an event field")
	}
}

func TestModeOf(t *testing.T) {
	tests := []struct {
		field string
		want  FieldMode
	}{
		{"Skipped", FieldSkip},
		{"Untouched", FieldShallow},
		{"Tagged", FieldEvent},
		{"Loader", FieldDefault},
	}

	for _, tt := range tests {
		if got := ModeOf(field(t, tt.field)); got != tt.want {
			t.Errorf("%s: expected mode %d, got %d", tt.field, tt.want, got)
		}
	}
}
