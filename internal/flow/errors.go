package flow

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialised      = errors.New("flow not initialised")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrInsufficientMineral = errors.New("insufficient mineral nutrient for immobilisation")
	ErrMissingSolute       = errors.New("required solute missing")
	ErrInvalidFlow         = errors.New("invalid flow configuration")
)

// ConfigError reports a flow whose configuration cannot be satisfied by the
// surrounding profile, such as a destination pool that does not exist.
type ConfigError struct {
	Flow string
	Pool string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("flow %s: destination %q: %v", e.Flow, e.Pool, e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MassBalanceError reports an immobilisation demand that the mineral pools
// of a layer could not meet.
type MassBalanceError struct {
	Flow     string
	Nutrient string
	Layer    int
	Deficit  float64
}

func (e *MassBalanceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("flow %s: layer %d: %v: %s short by %g kg/ha",
		e.Flow, e.Layer, ErrInsufficientMineral, e.Nutrient, e.Deficit)
}

func (e *MassBalanceError) Unwrap() error {
	return ErrInsufficientMineral
}
