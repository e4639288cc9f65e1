package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Supported source formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatCUE  = "cue"
)

// CUEParser parses configuration files and validates them against the
// built-in #Config schema and the struct tags of Config.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: newSchemaRegistry(ctx),
		validator:      newValidator(),
	}
}

// newValidator returns a validator that reports json field names and knows
// the typename tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("typename", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && !strings.ContainsAny(s, " \t\r\n")
	})
	return v
}

// Load parses the given files or directories and returns the validated
// configuration.
func Load(ctx context.Context, sources ...string) (*Config, error) {
	parsed, err := NewCUEParser().Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return parsed.Config, nil
}

// FormatOf returns the source format for a file name, or "" if the file is
// not a configuration file.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".cue":
		return FormatCUE
	default:
		return ""
	}
}

// Parse parses configuration from the given sources. Directories contribute
// every supported file they contain. All sources are unified, so they must
// agree where they overlap.
//
// Problems with the configuration itself are reported in
// ParsedConfig.Errors; the returned error is reserved for unreadable
// sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var files []string
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if !info.IsDir() {
			files = append(files, source)
			continue
		}

		err = filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && FormatOf(path) != "" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", source, err)
		}
	}

	parsed := &ParsedConfig{
		SourceFiles: files,
		ParsedAt:    time.Now(),
	}
	if len(files) == 0 {
		parsed.Errors = []ValidationError{{
			Message:  "no configuration files found",
			Severity: "error",
		}}
		return parsed, nil
	}

	var value cue.Value
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file, err)
		}

		val, errs := cp.compile(file, content, FormatOf(file))
		if len(errs) > 0 {
			parsed.Errors = append(parsed.Errors, errs...)
			continue
		}

		if value.Exists() {
			value = value.Unify(val)
		} else {
			value = val
		}
	}

	if len(parsed.Errors) > 0 {
		return parsed, nil
	}

	parsed.Config, parsed.Errors = cp.extractConfig(value)
	return parsed, nil
}

// ParseInline parses configuration held in memory.
func (cp *CUEParser) ParseInline(ctx context.Context, content, format string) (*ParsedConfig, error) {
	parsed := &ParsedConfig{
		SourceFiles: []string{"inline"},
		ParsedAt:    time.Now(),
	}

	val, errs := cp.compile("inline", []byte(content), format)
	if len(errs) > 0 {
		parsed.Errors = errs
		return parsed, nil
	}

	parsed.Config, parsed.Errors = cp.extractConfig(val)
	return parsed, nil
}

// compile turns one source into a CUE value.
func (cp *CUEParser) compile(name string, content []byte, format string) (cue.Value, []ValidationError) {
	switch format {
	case FormatCUE, FormatJSON:
		// JSON is valid CUE.
		val := cp.ctx.CompileBytes(content, cue.Filename(name))
		if err := val.Err(); err != nil {
			return cue.Value{}, cp.convertCUEErrors(err)
		}
		return val, nil

	case FormatYAML:
		var data map[string]interface{}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return cue.Value{}, []ValidationError{{
				File:     name,
				Message:  fmt.Sprintf("failed to parse YAML: %v", err),
				Severity: "error",
			}}
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		val := cp.ctx.Encode(data)
		if err := val.Err(); err != nil {
			return cue.Value{}, cp.convertCUEErrors(err)
		}
		return val, nil

	default:
		return cue.Value{}, []ValidationError{{
			File:     name,
			Message:  fmt.Sprintf("unsupported format %q", format),
			Severity: "error",
		}}
	}
}

// extractConfig checks val against #Config, decodes it and runs the struct
// validator.
func (cp *CUEParser) extractConfig(val cue.Value) (*Config, []ValidationError) {
	schema, err := cp.schemaRegistry.Definition("config", "#Config")
	if err != nil {
		return nil, []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, []ValidationError{{
			Message:  fmt.Sprintf("failed to decode config: %v", err),
			Severity: "error",
		}}
	}

	if errs := cp.validateStruct(&cfg); len(errs) > 0 {
		return nil, errs
	}

	return &cfg, nil
}

// Validate checks a Config built in code against the schema and the struct
// tags.
func (cp *CUEParser) Validate(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	val := cp.ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile config: %w", err)
	}

	_, errs := cp.extractConfig(val)
	if len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}

// validateStruct runs the struct tag validator.
func (cp *CUEParser) validateStruct(cfg *Config) []ValidationError {
	err := cp.validator.Struct(cfg)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	result := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		result = append(result, ValidationError{
			Path:     strings.TrimPrefix(fe.Namespace(), "Config."),
			Message:  fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Severity: "error",
		})
	}
	return result
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}
