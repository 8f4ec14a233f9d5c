package mdb

import (
	"errors"
	"fmt"
)

// CalibratorKind identifies the calibration variant.
type CalibratorKind int

const (
	PolynomialCalibration CalibratorKind = iota + 1
	SplineCalibration
	LookupCalibration
	CustomCalibration
)

func (k CalibratorKind) String() string {
	switch k {
	case PolynomialCalibration:
		return "polynomial"
	case SplineCalibration:
		return "spline"
	case LookupCalibration:
		return "lookup"
	case CustomCalibration:
		return "custom"
	default:
		return fmt.Sprintf("CalibratorKind(%d)", int(k))
	}
}

// Calibrator maps a raw encoded value to an engineering value.
type Calibrator interface {
	CalibratorKind() CalibratorKind
}

// Polynomial calibrates with c0 + c1*x + c2*x^2 + ...
type Polynomial struct {
	Coefficients []float64
}

func (Polynomial) CalibratorKind() CalibratorKind { return PolynomialCalibration }

// SplinePoint is one interpolation point.
type SplinePoint struct {
	Raw        float64
	Calibrated float64
}

// Spline interpolates between points ordered by raw value.
type Spline struct {
	Order  int // 0 (step) or 1 (linear)
	Points []SplinePoint
}

func (Spline) CalibratorKind() CalibratorKind { return SplineCalibration }

// LookupEntry maps one raw integer to a calibrated value.
type LookupEntry struct {
	Raw   int64
	Value float64
}

// Lookup is an enumeration-style table from raw integers to values.
type Lookup struct {
	Entries []LookupEntry
}

func (Lookup) CalibratorKind() CalibratorKind { return LookupCalibration }

// Custom is an opaque calibration function evaluated by the consumer.
type Custom struct {
	Language string
	Text     string
}

func (Custom) CalibratorKind() CalibratorKind { return CustomCalibration }

// validateCalibrator checks structural rules and compatibility with the
// encoding kind. Lookup tables need integer encodings; every other
// calibrator needs a numeric one.
func validateCalibrator(kind EncodingKind, c Calibrator) error {
	switch cal := c.(type) {
	case Polynomial:
		if !kind.IsNumeric() {
			return fmt.Errorf("polynomial calibration needs a numeric encoding, not %s", kind)
		}
		if len(cal.Coefficients) == 0 {
			return errors.New("polynomial needs at least one coefficient")
		}
	case Spline:
		if !kind.IsNumeric() {
			return fmt.Errorf("spline calibration needs a numeric encoding, not %s", kind)
		}
		if cal.Order != 0 && cal.Order != 1 {
			return fmt.Errorf("spline order must be 0 or 1, got %d", cal.Order)
		}
		if len(cal.Points) < 2 {
			return errors.New("spline needs at least two points")
		}
		for i := 1; i < len(cal.Points); i++ {
			if cal.Points[i].Raw <= cal.Points[i-1].Raw {
				return fmt.Errorf("spline raw values must be strictly increasing at point %d", i)
			}
		}
	case Lookup:
		if !kind.IsInteger() {
			return fmt.Errorf("lookup calibration needs an integer encoding, not %s", kind)
		}
		if len(cal.Entries) == 0 {
			return errors.New("lookup table is empty")
		}
		seen := make(map[int64]bool, len(cal.Entries))
		for _, entry := range cal.Entries {
			if seen[entry.Raw] {
				return fmt.Errorf("duplicate raw value %d in lookup table", entry.Raw)
			}
			seen[entry.Raw] = true
		}
	case Custom:
		if !kind.IsNumeric() {
			return fmt.Errorf("custom calibration needs a numeric encoding, not %s", kind)
		}
		if cal.Text == "" {
			return errors.New("custom calibration text is empty")
		}
	default:
		return fmt.Errorf("unsupported calibrator %T", c)
	}
	return nil
}
