package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/graphmill/graphload/internal/types"
)

// Validator validates configuration values.
type Validator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements Validator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator instance.
func NewValidator() Validator {
	return &validatorImpl{validate: validator.New()}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	if err := v.validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validation error", err)
		}

		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - ")))
	}

	// Unresolved ${VAR} placeholders mean a required environment variable
	// was never set.
	for field, val := range map[string]string{
		"neo4j.uri":      cfg.Neo4j.URI,
		"neo4j.username": cfg.Neo4j.Username,
		"neo4j.password": cfg.Neo4j.Password,
		"neo4j.database": cfg.Neo4j.Database,
	} {
		if strings.Contains(val, "${") {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("%s references an unset environment variable: %s", field, val))
		}
	}

	if cfg.Checkpoint.Enabled && cfg.Checkpoint.Path == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"checkpoint.path must be set when checkpoint.enabled is true")
	}

	return nil
}

// formatValidationError formats a single validation error with field path
// and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation rule %q", fieldPath, e.Tag())
	}
}

// formatFieldPath converts a struct namespace like Config.Neo4j.URI to the
// config file path neo4j.uri.
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}
