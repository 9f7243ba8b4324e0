package refdata

import "fmt"

// ConfigError reports missing or malformed reference data.
// It is fatal at startup: verification never runs against incomplete lists.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reference config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("reference config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
