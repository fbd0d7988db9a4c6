package types

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
)

/*
Values stored in a package form a closed set: Scalar, Vector and Matrix.
Value is sealed (unexported marker method) so every switch over a value's type is exhaustive
and decoding can never produce a kind the engine does not know about.

On disk a value is its "sterilized" text form, a type token followed by shape and elements:

	SCA R 3.5        SCA Z 42        SCA Q 1 3
	VEC 3 1 2 3
	MAT 2 2 1 2 3 4
*/

type Value interface {
	Type() ValueType
	Sterilize(w io.Writer) error
	Equal(other Value) bool
	String() string

	isValue()
}

const (
	scalarToken = "SCA"
	vectorToken = "VEC"
	matrixToken = "MAT"
)

// Sterilized returns the on-disk text of v. A nil value sterilizes to nothing.
func Sterilized(v Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := v.Sterilize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RequiredUnits is the number of units v occupies in an entry: one length header unit plus the text.
func RequiredUnits(v Value, unitSize int) (int, error) {
	text, err := Sterilized(v)
	if err != nil {
		return 0, err
	}
	return 1 + UnitsFor(len(text), unitSize), nil
}

// TypeOf returns ValueNone for a nil value.
func TypeOf(v Value) ValueType {
	if v == nil {
		return ValueNone
	}
	return v.Type()
}

// FromSterilize parses one value from its sterilized text.
func FromSterilize(r io.Reader) (Value, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errdefs.IOError(err, "read sterilized value")
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return nil, errors.Wrap(errdefs.ErrFormat, "empty value text")
	}

	switch fields[0] {
	case scalarToken:
		return parseScalar(fields[1:])
	case vectorToken:
		return parseVector(fields[1:])
	case matrixToken:
		return parseMatrix(fields[1:])
	default:
		return nil, errors.Wrapf(errdefs.ErrFormat, "unrecognized value token %q", fields[0])
	}
}

// ParseValue is FromSterilize over a string, used by the CLI.
func ParseValue(text string) (Value, error) {
	return FromSterilize(strings.NewReader(text))
}

// ##################################### SCALAR #####################################

type ScalarKind byte

const (
	ScalarReal ScalarKind = iota
	ScalarInteger
	ScalarFraction
)

func (k ScalarKind) token() string {
	switch k {
	case ScalarInteger:
		return "Z"
	case ScalarFraction:
		return "Q"
	default:
		return "R"
	}
}

type Scalar struct {
	kind ScalarKind
	real float64
	num  int64
	den  int64
}

func Real(v float64) Scalar { return Scalar{kind: ScalarReal, real: v} }

func Integer(v int64) Scalar { return Scalar{kind: ScalarInteger, num: v, den: 1} }

func Fraction(num, den int64) (Scalar, error) {
	if den == 0 {
		return Scalar{}, errors.Wrap(errdefs.ErrValidation, "fraction denominator is zero")
	}
	if den < 0 {
		num, den = -num, -den
	}
	return Scalar{kind: ScalarFraction, num: num, den: den}, nil
}

func (s Scalar) Kind() ScalarKind { return s.kind }

func (s Scalar) Float64() float64 {
	switch s.kind {
	case ScalarInteger:
		return float64(s.num)
	case ScalarFraction:
		return float64(s.num) / float64(s.den)
	default:
		return s.real
	}
}

func (s Scalar) Type() ValueType { return ValueScalar }

func (s Scalar) Sterilize(w io.Writer) error {
	_, err := io.WriteString(w, scalarToken+" "+s.kind.token()+" "+s.body())
	return err
}

func (s Scalar) body() string {
	switch s.kind {
	case ScalarInteger:
		return strconv.FormatInt(s.num, 10)
	case ScalarFraction:
		return strconv.FormatInt(s.num, 10) + " " + strconv.FormatInt(s.den, 10)
	default:
		return formatFloat(s.real)
	}
}

func (s Scalar) Equal(other Value) bool {
	o, ok := other.(Scalar)
	if !ok || o.kind != s.kind {
		return false
	}
	if s.kind == ScalarReal {
		return s.real == o.real
	}
	return s.num == o.num && s.den == o.den
}

func (s Scalar) String() string {
	if s.kind == ScalarFraction {
		return strconv.FormatInt(s.num, 10) + "/" + strconv.FormatInt(s.den, 10)
	}
	return s.body()
}

func (Scalar) isValue() {}

func parseScalar(fields []string) (Value, error) {
	if len(fields) < 2 {
		return nil, errors.Wrap(errdefs.ErrFormat, "scalar: missing kind or value")
	}
	switch fields[0] {
	case "R":
		if len(fields) != 2 {
			return nil, errors.Wrap(errdefs.ErrFormat, "scalar: trailing tokens")
		}
		f, err := parseFloat(fields[1])
		if err != nil {
			return nil, err
		}
		return Real(f), nil
	case "Z":
		if len(fields) != 2 {
			return nil, errors.Wrap(errdefs.ErrFormat, "scalar: trailing tokens")
		}
		i, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(errdefs.ErrFormat, "scalar: bad integer %q", fields[1])
		}
		return Integer(i), nil
	case "Q":
		if len(fields) != 3 {
			return nil, errors.Wrap(errdefs.ErrFormat, "scalar: fraction needs numerator and denominator")
		}
		num, err1 := strconv.ParseInt(fields[1], 10, 64)
		den, err2 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, errors.Wrapf(errdefs.ErrFormat, "scalar: bad fraction %s/%s", fields[1], fields[2])
		}
		q, err := Fraction(num, den)
		if err != nil {
			return nil, errors.Wrap(errdefs.ErrFormat, err.Error())
		}
		return q, nil
	default:
		return nil, errors.Wrapf(errdefs.ErrFormat, "scalar: unrecognized kind %q", fields[0])
	}
}

// ##################################### VECTOR #####################################

type Vector struct {
	elems []float64
}

func NewVector(elems ...float64) (Vector, error) {
	if len(elems) == 0 {
		return Vector{}, errors.Wrap(errdefs.ErrValidation, "vector dimension is zero")
	}
	return Vector{elems: append([]float64(nil), elems...)}, nil
}

func (v Vector) Dim() int { return len(v.elems) }
func (v Vector) At(i int) float64 { return v.elems[i] }
func (v Vector) Elems() []float64 { return append([]float64(nil), v.elems...) }
func (v Vector) Type() ValueType { return ValueVector }

func (v Vector) Sterilize(w io.Writer) error {
	parts := make([]string, 0, len(v.elems)+2)
	parts = append(parts, vectorToken, strconv.Itoa(len(v.elems)))
	for _, e := range v.elems {
		parts = append(parts, formatFloat(e))
	}
	_, err := io.WriteString(w, strings.Join(parts, " "))
	return err
}

func (v Vector) Equal(other Value) bool {
	o, ok := other.(Vector)
	return ok && floatsEqual(v.elems, o.elems)
}

func (v Vector) String() string {
	parts := make([]string, len(v.elems))
	for i, e := range v.elems {
		parts[i] = formatFloat(e)
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

func (Vector) isValue() {}

func parseVector(fields []string) (Value, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(errdefs.ErrFormat, "vector: missing dimension")
	}
	d, err := parseDim(fields[0])
	if err != nil {
		return nil, err
	}
	if len(fields)-1 != d {
		return nil, errors.Wrapf(errdefs.ErrFormat, "vector: expected %d elements, got %d", d, len(fields)-1)
	}
	elems, err := parseFloats(fields[1:])
	if err != nil {
		return nil, err
	}
	return Vector{elems: elems}, nil
}

// ##################################### MATRIX #####################################

type Matrix struct {
	rows, cols int
	data       []float64 // row-major
}

func NewMatrix(rows, cols int, data []float64) (Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return Matrix{}, errors.Wrapf(errdefs.ErrValidation, "matrix dimension %dx%d", rows, cols)
	}
	if rows > len(data) || cols > len(data) || len(data) != rows*cols {
		return Matrix{}, errors.Wrapf(errdefs.ErrValidation, "matrix %dx%d does not match %d elements", rows, cols, len(data))
	}
	return Matrix{rows: rows, cols: cols, data: append([]float64(nil), data...)}, nil
}

func (m Matrix) Rows() int { return m.rows }
func (m Matrix) Cols() int { return m.cols }
func (m Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }
func (m Matrix) Type() ValueType { return ValueMatrix }

func (m Matrix) Sterilize(w io.Writer) error {
	parts := make([]string, 0, len(m.data)+3)
	parts = append(parts, matrixToken, strconv.Itoa(m.rows), strconv.Itoa(m.cols))
	for _, e := range m.data {
		parts = append(parts, formatFloat(e))
	}
	_, err := io.WriteString(w, strings.Join(parts, " "))
	return err
}

func (m Matrix) Equal(other Value) bool {
	o, ok := other.(Matrix)
	return ok && m.rows == o.rows && m.cols == o.cols && floatsEqual(m.data, o.data)
}

func (m Matrix) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.rows; i++ {
		sb.WriteString(" [")
		for j := 0; j < m.cols; j++ {
			sb.WriteString(" " + formatFloat(m.At(i, j)))
		}
		sb.WriteString(" ]")
	}
	sb.WriteString(" ]")
	return sb.String()
}

func (Matrix) isValue() {}

func parseMatrix(fields []string) (Value, error) {
	if len(fields) < 2 {
		return nil, errors.Wrap(errdefs.ErrFormat, "matrix: missing dimensions")
	}
	rows, err := parseDim(fields[0])
	if err != nil {
		return nil, err
	}
	cols, err := parseDim(fields[1])
	if err != nil {
		return nil, err
	}
	// each dimension is bounded by the element count before multiplying, so rows*cols cannot overflow
	n := len(fields) - 2
	if rows > n || cols > n || rows*cols != n {
		return nil, errors.Wrapf(errdefs.ErrFormat, "matrix: %sx%s does not match %d elements", fields[0], fields[1], n)
	}
	data, err := parseFloats(fields[2:])
	if err != nil {
		return nil, err
	}
	return Matrix{rows: rows, cols: cols, data: data}, nil
}

// ##################################### HELPERS #####################################

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(errdefs.ErrFormat, "bad number %q", s)
	}
	return f, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		f, err := parseFloat(s)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseDim(s string) (int, error) {
	d, err := strconv.Atoi(s)
	if err != nil || d <= 0 {
		return 0, errors.Wrapf(errdefs.ErrFormat, "bad dimension %q", s)
	}
	return d, nil
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}
