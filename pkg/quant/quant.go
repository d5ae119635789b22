package quant

import (
	"fmt"
	"strings"
)

// Type is a quantized integer representation assigned to a tensor.
// The set is closed; the zero value is not a valid type.
type Type uint8

const (
	QInt8 Type = iota + 1
	QUInt8
	QInt16
	QUInt16
)

var typeNames = map[Type]string{
	QInt8:   "QInt8",
	QUInt8:  "QUInt8",
	QInt16:  "QInt16",
	QUInt16: "QUInt16",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the known quantized types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsNarrow reports whether t is an 8-bit type.
func (t Type) IsNarrow() bool {
	return t == QInt8 || t == QUInt8
}

// IsWide reports whether t is a 16-bit type.
func (t Type) IsWide() bool {
	return t == QInt16 || t == QUInt16
}

// IsSigned reports whether t has a signed integer representation.
func (t Type) IsSigned() bool {
	return t == QInt8 || t == QInt16
}

// Bits returns the storage width of t.
func (t Type) Bits() int {
	switch {
	case t.IsNarrow():
		return 8
	case t.IsWide():
		return 16
	default:
		return 0
	}
}

// ParseType accepts the canonical names ("QUInt16") case-insensitively.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown quant type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid quant type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CalibrationMethod selects how the downstream quantizer derives ranges
// from calibration data. It is carried through untouched.
type CalibrationMethod uint8

const (
	MinMax CalibrationMethod = iota
	Entropy
	Percentile
	Distribution
)

var calibrationNames = [...]string{
	MinMax:       "MinMax",
	Entropy:      "Entropy",
	Percentile:   "Percentile",
	Distribution: "Distribution",
}

func (m CalibrationMethod) String() string {
	if int(m) < len(calibrationNames) {
		return calibrationNames[m]
	}
	return fmt.Sprintf("CalibrationMethod(%d)", uint8(m))
}

func ParseCalibrationMethod(s string) (CalibrationMethod, error) {
	for i, name := range calibrationNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return CalibrationMethod(i), nil
		}
	}
	return 0, fmt.Errorf("unknown calibration method %q", s)
}

func (m CalibrationMethod) MarshalText() ([]byte, error) {
	if int(m) >= len(calibrationNames) {
		return nil, fmt.Errorf("invalid calibration method %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *CalibrationMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseCalibrationMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
