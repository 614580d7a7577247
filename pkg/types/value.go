package types

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags the dynamic type carried by a Value. Rows are heterogeneous, so
// every scalar that flows through a Row, a predicate, or an index key wears
// one of these.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindBool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// Value is the tagged scalar variant every Row field and every predicate
// literal is made of. Exactly one of the typed fields is meaningful,
// selected by Kind; this avoids a boxed interface{} (and the type-switch
// sprawl that follows it) while still letting int/float widen against each
// other on comparison.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    bool
}

func Null() Value                { return Value{Kind: KindNull} }
func Int(v int64) Value          { return Value{Kind: KindInt, I: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, F: v} }
func String(v string) Value      { return Value{Kind: KindString, S: v} }
func Bool(v bool) Value          { return Value{Kind: KindBool, B: v} }
func (v Value) IsNull() bool     { return v.Kind == KindNull }
func (v Value) IsNumeric() bool  { return v.Kind == KindInt || v.Kind == KindFloat }

func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// Equal widens int/float for comparison; NULL is never equal to anything,
// including another NULL. Cross-kind comparisons between non-numeric kinds
// yield false rather than an error.
func (v Value) Equal(other Value) bool {
	if v.IsNull() || other.IsNull() {
		return false
	}
	if v.IsNumeric() && other.IsNumeric() {
		return v.asFloat() == other.asFloat()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.S == other.S
	case KindBool:
		return v.B == other.B
	default:
		return false
	}
}

// CompareValue orders values of the same comparable family. Numeric kinds
// widen against each other; string and bool compare only within their own
// kind. A NULL on either side is unordered (returns 0, matching the ternary
// "never equal, never ordered" handling used by Row predicates — callers
// that need a hard ordering, e.g. an index key, must not pass NULL).
func (v Value) CompareValue(other Value) int {
	if v.IsNull() || other.IsNull() {
		return 0
	}
	if v.IsNumeric() && other.IsNumeric() {
		a, b := v.asFloat(), other.asFloat()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	switch v.Kind {
	case KindString:
		return strings.Compare(v.S, other.S)
	case KindBool:
		if v.B == other.B {
			return 0
		}
		if !v.B && other.B {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindString:
		return v.S
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	default:
		return ""
	}
}

// Like implements LIKE with leading/trailing '%' only (substring match).
func (v Value) Like(pattern string) bool {
	if v.Kind != KindString {
		return false
	}
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	core := strings.Trim(pattern, "%")

	switch {
	case leading && trailing:
		return strings.Contains(v.S, core)
	case leading:
		return strings.HasSuffix(v.S, core)
	case trailing:
		return strings.HasPrefix(v.S, core)
	default:
		return v.S == core
	}
}

// Comparable is the key interface the B+Tree indexes order on, so Value can
// key an index directly with no wrapper type needed.
type Comparable interface {
	Compare(other Comparable) int
}

// Compare implements Comparable. The B+Tree never hands us a NULL key
// (primary keys reject NULL at write time), so this panics loudly instead
// of silently treating NULL as orderable.
func (v Value) Compare(other Comparable) int {
	o, ok := other.(Value)
	if !ok {
		panic(fmt.Sprintf("types: cannot compare Value against %T", other))
	}
	if v.IsNull() || o.IsNull() {
		panic("types: NULL is not a valid index key")
	}
	return v.CompareValue(o)
}

// Key adapts a non-NULL Value into a B+Tree index key. Value already
// satisfies Comparable, so this is an identity conversion kept for call-site
// clarity at index boundaries.
func Key(v Value) Comparable {
	return v
}

// DateKey is not one of Value's own kinds, but the storage layer's internal
// bookkeeping (WAL/checkpoint timestamps) still wants an ordered time key.
type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o := time.Time(other.(DateKey))
	t := time.Time(k)
	switch {
	case t.Before(o):
		return -1
	case t.After(o):
		return 1
	default:
		return 0
	}
}

func (k DateKey) String() string {
	return time.Time(k).Format("2006-01-02 15:04:05")
}
