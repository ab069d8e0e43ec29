package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error lists every missing and invalid setting found while resolving configuration.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", ")+" (set them in your environment or .env)")
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, "; "))
	}
	return "configuration: " + strings.Join(parts, "; ")
}

func (e *Error) empty() bool { return len(e.Missing) == 0 && len(e.Invalid) == 0 }

func (e *Error) invalid(format string, args ...any) {
	e.Invalid = append(e.Invalid, fmt.Sprintf(format, args...))
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Combine merges configuration errors so every problem is reported at once.
// The first error that is not a configuration error is returned as is.
func Combine(errs ...error) error {
	merged := &Error{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var e *Error
		if !errors.As(err, &e) {
			return err
		}
		merged.Missing = append(merged.Missing, e.Missing...)
		merged.Invalid = append(merged.Invalid, e.Invalid...)
	}
	if merged.empty() {
		return nil
	}
	return merged
}
