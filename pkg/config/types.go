package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the classification and telemetry configuration of a cloner.
type Config struct {
	// Ignore lists qualified type names that are never copied
	// (e.g., "example.com/driver.Conn").
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty" validate:"dive,required,typename"`

	// Share lists qualified type names that are aliased instead of copied.
	Share []string `json:"share,omitempty" yaml:"share,omitempty" validate:"dive,required,typename"`

	// EventConvention toggles name-based event field detection. Unset keeps
	// the registry default.
	EventConvention *bool `json:"event_convention,omitempty" yaml:"event_convention,omitempty"`

	// Policies are Rego files or directories of classification policies.
	Policies []string `json:"policies,omitempty" yaml:"policies,omitempty" validate:"dive,required"`

	// EnablePolicies lists built-in policies to switch on.
	EnablePolicies []string `json:"enable_policies,omitempty" yaml:"enable_policies,omitempty" validate:"dive,required"`

	// DisablePolicies lists built-in policies to switch off.
	DisablePolicies []string `json:"disable_policies,omitempty" yaml:"disable_policies,omitempty" validate:"dive,required"`

	// Telemetry overrides the telemetry defaults.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// TelemetryConfig is the file form of telemetry.Config. Empty fields keep
// the defaults.
type TelemetryConfig struct {
	// ServiceName is the name reported in traces.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`

	// Environment is the deployment environment.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// LogLevel is the minimum log level.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// LogFormat is console or json.
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`

	// TraceExporter is otlp, stdout or none. Setting it enables tracing.
	TraceExporter string `json:"trace_exporter,omitempty" yaml:"trace_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`

	// TraceEndpoint is the OTLP collector address.
	TraceEndpoint string `json:"trace_endpoint,omitempty" yaml:"trace_endpoint,omitempty" validate:"required_if=TraceExporter otlp"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate *float64 `json:"sampling_rate,omitempty" yaml:"sampling_rate,omitempty" validate:"omitempty,gte=0,lte=1"`

	// MetricsEnabled toggles the Prometheus registry.
	MetricsEnabled *bool `json:"metrics_enabled,omitempty" yaml:"metrics_enabled,omitempty"`

	// MetricsAddress is the listen address of the metrics endpoint.
	MetricsAddress string `json:"metrics_address,omitempty" yaml:"metrics_address,omitempty"`
}

// ParsedConfig represents a configuration parsed from one or more files.
type ParsedConfig struct {
	// Config is the decoded configuration. It is nil when Errors is not empty.
	Config *Config `json:"config,omitempty"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns the validation errors as a single error, or nil.
func (pc *ParsedConfig) Err() error {
	if len(pc.Errors) == 0 {
		return nil
	}
	return ValidationErrors(pc.Errors)
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the path to the offending field (e.g., "telemetry.log_level").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	var b strings.Builder
	if ve.File != "" {
		b.WriteString(ve.File)
		if ve.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", ve.Line, ve.Column)
		}
		b.WriteString(": ")
	}
	if ve.Path != "" {
		b.WriteString(ve.Path)
		b.WriteString(": ")
	}
	b.WriteString(ve.Message)
	return b.String()
}

// ValidationErrors is a list of validation errors reported together.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(ve), strings.Join(msgs, "; "))
}
