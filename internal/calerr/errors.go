package calerr

import (
	"errors"
	"fmt"
)

var (
	ErrDegenerateGeometry    = errors.New("degenerate geometry")
	ErrSingularConfiguration = fmt.Errorf("%w: singular configuration", ErrDegenerateGeometry)
	ErrNoCalibrationData     = errors.New("no calibration data")
	ErrSessionNotFound       = errors.New("observation session not found")
	ErrDeviceNotConnected    = errors.New("sensing device not connected")
	ErrDuplicateReference    = errors.New("duplicate reference position")
	ErrNonFiniteCoordinate   = errors.New("non-finite coordinate")
	ErrPointNotFound         = errors.New("calibration point not found")
	ErrInsufficientMappings  = errors.New("insufficient reference mappings")
)

type InsufficientPointsError struct {
	AntennaID string
	Required  int
	Provided  int
}

func (e *InsufficientPointsError) Error() string {
	if e.AntennaID != "" {
		return fmt.Sprintf("antenna %s: insufficient calibration points: required %d, provided %d", e.AntennaID, e.Required, e.Provided)
	}
	return fmt.Sprintf("insufficient calibration points: required %d, provided %d", e.Required, e.Provided)
}

type InsufficientTagsError struct {
	AntennaID string
	Required  int
	Found     int
}

func (e *InsufficientTagsError) Error() string {
	return fmt.Sprintf("antenna %s: insufficient tags: required %d, found %d", e.AntennaID, e.Required, e.Found)
}

type InsufficientMappingsError struct {
	Required int
	Found    int
}

func (e *InsufficientMappingsError) Error() string {
	return fmt.Sprintf("%s: required %d, found %d", ErrInsufficientMappings, e.Required, e.Found)
}

func (e *InsufficientMappingsError) Unwrap() error {
	return ErrInsufficientMappings
}

// InvalidCalibrationDataError reports input that can never produce a transform.
// Err is one of the sentinels above when the cause is known.
type InvalidCalibrationDataError struct {
	Reason string
	Err    error
}

func (e *InvalidCalibrationDataError) Error() string {
	return fmt.Sprintf("invalid calibration data: %s", e.Reason)
}

func (e *InvalidCalibrationDataError) Unwrap() error {
	return e.Err
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func InvalidData(err error, format string, args ...interface{}) error {
	return &InvalidCalibrationDataError{
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
