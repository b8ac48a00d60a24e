package scalar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the declared type of a scalar.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBool:   "bool",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Numeric reports whether values of this kind participate in ordering.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// ParseKind maps a type name ("int", "float", "string", "bool", "null") to a Kind.
// "integer", "double", "number" and "boolean" are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "long":
		return KindInt, nil
	case "float", "double", "number":
		return KindFloat, nil
	case "string", "str":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	case "null", "":
		return KindNull, nil
	default:
		return KindNull, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is a sealed interface over the scalar types.
type Value interface {
	Kind() Kind
	String() string
	scalarValue() // Sealed - only the types in this file implement it
}

// Null is the absent value.
type Null struct{}

func (Null) scalarValue()   {}
func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }

// Int is a 64-bit integer scalar.
type Int int64

func (Int) scalarValue()     {}
func (Int) Kind() Kind       { return KindInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a 64-bit floating point scalar.
type Float float64

func (Float) scalarValue() {}
func (Float) Kind() Kind   { return KindFloat }

// String renders floats so that integral values keep a trailing ".0" and
// remain distinguishable from Int.
func (f Float) String() string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// String is a text scalar.
type String string

func (String) scalarValue()     {}
func (String) Kind() Kind       { return KindString }
func (s String) String() string { return string(s) }

// Bool is a boolean scalar.
type Bool bool

func (Bool) scalarValue()     {}
func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// ErrNotComparable is returned when ordering is requested for non-numeric values.
var ErrNotComparable = errors.New("values are not ordered")

// ErrDivideByZero is returned by integer division or modulo by zero.
var ErrDivideByZero = errors.New("division by zero")

// IsNumeric reports whether v is an Int or a Float.
func IsNumeric(v Value) bool {
	return v != nil && v.Kind().Numeric()
}

// ToFloat converts a numeric value to float64.
func ToFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// Compare orders two numeric values, promoting Int to Float when the kinds
// differ. Returns -1, 0 or 1.
func Compare(a, b Value) (int, error) {
	if ai, ok := a.(Int); ok {
		if bi, ok := b.(Int); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	af, aok := ToFloat(a)
	bf, bok := ToFloat(b)
	if !aok || !bok {
		return 0, fmt.Errorf("%w: %s and %s", ErrNotComparable, kindOf(a), kindOf(b))
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether two values are equal. Numeric values compare after
// promotion; other kinds must match exactly.
func Equal(a, b Value) bool {
	if IsNumeric(a) && IsNumeric(b) {
		c, err := Compare(a, b)
		return err == nil && c == 0
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return a == b
}

// Truthy reports whether v counts as true in a predicate position.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0
	case String:
		return val != ""
	default:
		return false
	}
}

// Arith applies a binary arithmetic or bitwise operator.
// Supported: + - * / % << >> & | ^
func Arith(op string, a, b Value) (Value, error) {
	if op == "+" {
		if as, ok := a.(String); ok {
			return String(string(as) + b.String()), nil
		}
	}

	ai, aInt := a.(Int)
	bi, bInt := b.(Int)
	if aInt && bInt {
		return intArith(op, int64(ai), int64(bi))
	}

	switch op {
	case "<<", ">>", "&", "|", "^":
		return nil, fmt.Errorf("operator %s requires integer operands, got %s and %s", op, kindOf(a), kindOf(b))
	}

	af, aok := ToFloat(a)
	bf, bok := ToFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("operator %s requires numeric operands, got %s and %s", op, kindOf(a), kindOf(b))
	}
	switch op {
	case "+":
		return Float(af + bf), nil
	case "-":
		return Float(af - bf), nil
	case "*":
		return Float(af * bf), nil
	case "/":
		return Float(af / bf), nil
	case "%":
		return Float(math.Mod(af, bf)), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func intArith(op string, a, b int64) (Value, error) {
	switch op {
	case "+":
		return Int(a + b), nil
	case "-":
		return Int(a - b), nil
	case "*":
		return Int(a * b), nil
	case "/":
		if b == 0 {
			return nil, ErrDivideByZero
		}
		return Int(a / b), nil
	case "%":
		if b == 0 {
			return nil, ErrDivideByZero
		}
		return Int(a % b), nil
	case "<<":
		if b < 0 {
			return nil, fmt.Errorf("negative shift count %d", b)
		}
		return Int(a << uint64(b)), nil
	case ">>":
		if b < 0 {
			return nil, fmt.Errorf("negative shift count %d", b)
		}
		return Int(a >> uint64(b)), nil
	case "&":
		return Int(a & b), nil
	case "|":
		return Int(a | b), nil
	case "^":
		return Int(a ^ b), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

// Negate returns -v for numeric values.
func Negate(v Value) (Value, error) {
	switch val := v.(type) {
	case Int:
		return -val, nil
	case Float:
		return -val, nil
	default:
		return nil, fmt.Errorf("cannot negate %s", kindOf(v))
	}
}

// Coerce converts v to the requested kind. Strings are parsed; Int widens to
// Float; integral Floats narrow to Int. KindNull leaves v untouched.
func Coerce(v Value, k Kind) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot coerce missing value to %s", k)
	}
	if k == KindNull || v.Kind() == k {
		return v, nil
	}

	switch k {
	case KindInt:
		switch val := v.(type) {
		case Float:
			if float64(val) != math.Trunc(float64(val)) {
				return nil, fmt.Errorf("float %s is not integral", val)
			}
			return Int(int64(val)), nil
		case String:
			n, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q as int: %w", string(val), err)
			}
			return Int(n), nil
		case Bool:
			if val {
				return Int(1), nil
			}
			return Int(0), nil
		}
	case KindFloat:
		switch val := v.(type) {
		case Int:
			return Float(float64(val)), nil
		case String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q as float: %w", string(val), err)
			}
			return Float(f), nil
		}
	case KindString:
		return String(v.String()), nil
	case KindBool:
		switch val := v.(type) {
		case String:
			b, err := strconv.ParseBool(strings.TrimSpace(string(val)))
			if err != nil {
				return nil, fmt.Errorf("parse %q as bool: %w", string(val), err)
			}
			return Bool(b), nil
		case Int:
			return Bool(val != 0), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %s to %s", v.Kind(), k)
}

// FromAny converts a decoded YAML/JSON value to a scalar.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(int64(val)), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(float64(val)), nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type: %T", v)
	}
}

// ParseLiteral interprets text the way the lexer classifies numbers: a '.'
// makes a Float, otherwise an Int. Anything else becomes a String.
func ParseLiteral(text string) Value {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(n)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f)
	}
	switch text {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(text)
}

func kindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}
