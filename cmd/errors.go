package cmd

import "fmt"

// ConfigValueError reports a configuration value the services cannot use.
type ConfigValueError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigValueError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid value %q for %s", e.Value, e.Key)
	}
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Key, e.Reason)
}

// InvalidOriginError signals an origin trust-origin refuses to store.
type InvalidOriginError struct {
	Origin string
	Reason string
}

func (e *InvalidOriginError) Error() string {
	switch {
	case e.Origin == "":
		return "origin is empty"
	case e.Reason != "":
		return fmt.Sprintf("origin %s rejected: %s", e.Origin, e.Reason)
	}
	return fmt.Sprintf("origin %s rejected", e.Origin)
}
