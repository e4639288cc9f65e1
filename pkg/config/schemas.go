package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants, so they always compile.
	_ = sr.RegisterSchema("config", builtinConfigSchema)

	return sr
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Definition returns the definition named def (e.g., "#Config") of a schema.
func (sr *SchemaRegistry) Definition(schemaName, def string) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	v := schema.LookupPath(cue.ParsePath(def))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("definition %s not found in schema %s", def, schemaName)
	}
	return v, nil
}

// Built-in schema definitions

const builtinConfigSchema = `
// Qualified type name, e.g. "sync.Mutex" or "*example.com/pkg.Type"
#TypeName: string & =~"^[^\\s]+$"

// Telemetry overrides
#Telemetry: {
	service_name?:    string & !=""
	environment?:     string
	log_level?:       "trace" | "debug" | "info" | "warn" | "error" | "fatal"
	log_format?:      "console" | "json"
	trace_exporter?:  "otlp" | "stdout" | "none"
	trace_endpoint?:  string
	sampling_rate?:   number & >=0 & <=1
	metrics_enabled?: bool
	metrics_address?: string & =~"^[^\\s]*:[0-9]+$"
}

// Cloner configuration
#Config: {
	ignore?: [...#TypeName]
	share?: [...#TypeName]
	event_convention?: bool
	policies?: [...string & !=""]
	enable_policies?: [...string & =~"^[a-z0-9-]+$"]
	disable_policies?: [...string & =~"^[a-z0-9-]+$"]
	telemetry?: #Telemetry
}
`
