package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/usnwatcher/internal/coalescer"
	"github.com/marmos91/usnwatcher/internal/filter"
)

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	letter := cfg.Volume[0]
	if !((letter >= 'A' && letter <= 'Z') || (letter >= 'a' && letter <= 'z')) {
		return fmt.Errorf("volume: %q is not a drive letter", cfg.Volume)
	}

	if _, err := filter.Parse(cfg.Filter); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	if cfg.DebounceWindow < coalescer.MinWindow {
		return fmt.Errorf("debounce_window: %s is below the %s floor", cfg.DebounceWindow, coalescer.MinWindow)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
