package opt

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientPoints is returned when fewer than two points are supplied.
	ErrInsufficientPoints = errors.New("opt: at least 2 points are required")
	// ErrDuplicatePoint is returned when two points share a name.
	ErrDuplicatePoint = errors.New("opt: duplicate point name")
	// ErrInvalidPoint is returned for empty names or out-of-range coordinates.
	ErrInvalidPoint = errors.New("opt: invalid point")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("opt: invalid config")
	// ErrDistanceProvider marks failures computing the distance matrix.
	ErrDistanceProvider = errors.New("opt: distance provider failed")
)

// DistanceError names the pair whose distance could not be computed.
type DistanceError struct {
	From, To string
	Err      error
}

func (e *DistanceError) Error() string {
	return fmt.Sprintf("%v: %s -> %s: %v", ErrDistanceProvider, e.From, e.To, e.Err)
}

func (e *DistanceError) Unwrap() []error { return []error{ErrDistanceProvider, e.Err} }
