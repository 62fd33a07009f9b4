package taskconfig

import (
	"fmt"
	"time"
)

// MaxTaskTimeout bounds per-task timeout overrides
const MaxTaskTimeout = 10 * time.Minute

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	if cfg.Version != SupportedVersion {
		return ValidationError{"version", fmt.Sprintf("must be %d, got %d", SupportedVersion, cfg.Version)}
	}

	for name, o := range cfg.Tasks {
		if name == "" {
			return ValidationError{"tasks", "empty task name"}
		}
		if o.Timeout == "" {
			continue
		}
		d, err := time.ParseDuration(o.Timeout)
		if err != nil {
			return ValidationError{"tasks." + name + ".timeout", err.Error()}
		}
		if d <= 0 || d > MaxTaskTimeout {
			return ValidationError{"tasks." + name + ".timeout", fmt.Sprintf("must be in (0, %s]", MaxTaskTimeout)}
		}
	}
	return nil
}
