package model

import "errors"

// Sentinel errors for the model package.
var (
	ErrUnknownParameter = errors.New("model: unknown parameter name")
	ErrParameterCount   = errors.New("model: wrong number of parameter values")
	ErrInvalidSmoother  = errors.New("model: invalid smoother configuration")
	ErrInvalidCell      = errors.New("model: invalid unit cell")
	ErrInvalidModel     = errors.New("model: invalid model geometry")
)
