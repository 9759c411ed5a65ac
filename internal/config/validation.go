package config

import (
	"fmt"
	"strings"

	"github.com/yoanbernabeu/provisioner/internal/security"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ValidatePlan validates the plan
func ValidatePlan(plan *Plan) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, validateTarget(&plan.Target)...)

	if plan.Defaults.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "defaults.timeout",
			Message: "timeout must not be negative",
		})
	}

	for i, step := range plan.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if strings.TrimSpace(step.Run) == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".run",
				Message: "command is required",
			})
		}
		if step.Timeout < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".timeout",
				Message: "timeout must not be negative",
			})
		}
	}

	return errors
}

func validateTarget(target *TargetConfig) ValidationErrors {
	var errors ValidationErrors

	if target.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "target.host",
			Message: "target host is required",
		})
	} else if err := security.ValidateHost(target.Host); err != nil {
		errors = append(errors, ValidationError{
			Field:   "target.host",
			Message: err.Error(),
		})
	}

	if target.User == "" {
		errors = append(errors, ValidationError{
			Field:   "target.user",
			Message: "target user is required",
		})
	} else if err := security.ValidateUnixUser(target.User); err != nil {
		errors = append(errors, ValidationError{
			Field:   "target.user",
			Message: err.Error(),
		})
	}

	if target.Port != 0 {
		if err := security.ValidatePort(target.Port); err != nil {
			errors = append(errors, ValidationError{
				Field:   "target.port",
				Message: err.Error(),
			})
		}
	}

	if env := target.Credential.Env; env != "" {
		if err := security.ValidateEnvKey(env); err != nil {
			errors = append(errors, ValidationError{
				Field:   "target.credential.env",
				Message: err.Error(),
			})
		}
	}

	if target.Credential.SecretKey != "" && target.Credential.SecretURL == "" {
		errors = append(errors, ValidationError{
			Field:   "target.credential.secret_key",
			Message: "secret_key requires secret_url",
		})
	}

	if target.InsecureIgnoreHostKey && target.KnownHosts != "" {
		errors = append(errors, ValidationError{
			Field:   "target.insecure_ignore_host_key",
			Message: "cannot be combined with known_hosts",
		})
	}

	return errors
}
