package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Error wraps a scenario loading failure with the operation and file.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "config.load_scenario", Path: path, Err: err}
	}
	return ParseScenario(path, b)
}

// ParseScenario decodes and validates YAML scenario bytes. path is used for
// error messages and as the default scenario name.
func ParseScenario(path string, b []byte) (*Scenario, error) {
	var dto YAMLScenario
	if err := yaml.Unmarshal(b, &dto); err != nil {
		return nil, &Error{
			Op:   "config.load_scenario",
			Path: path,
			Err:  fmt.Errorf("%w: %v", ErrInvalidScenario, err),
		}
	}
	return MapScenario(path, dto)
}
