package storage

import (
	"fmt"
	"time"

	"github.com/bobboyms/reldb/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Row is an ordered mapping from column name to scalar value; column order
// follows the owning table's schema. bson.D already carries that ordering,
// so it doubles as both the in-memory and on-disk shape of a row.
type Row bson.D

// Get returns the value bound to column, and whether the column is present.
func (r Row) Get(column string) (types.Value, bool) {
	for _, e := range r {
		if e.Key == column {
			return toValue(e.Value), true
		}
	}
	return types.Null(), false
}

// With returns a copy of r with column set to value, replacing any existing
// entry for that column or appending if absent. Rows are never mutated in
// place once written to the heap.
func (r Row) With(column string, value types.Value) Row {
	out := make(Row, 0, len(r)+1)
	replaced := false
	for _, e := range r {
		if e.Key == column {
			out = append(out, bson.E{Key: column, Value: fromValue(value)})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, bson.E{Key: column, Value: fromValue(value)})
	}
	return out
}

// Equal implements the full-row-identity comparison used by
// update_by_old_new when a table declares no primary key.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for _, e := range r {
		ov, ok := other.Get(e.Key)
		if !ok {
			return false
		}
		v, _ := r.Get(e.Key)
		if !v.Equal(ov) {
			return false
		}
	}
	return true
}

func toValue(raw interface{}) types.Value {
	switch v := raw.(type) {
	case nil:
		return types.Null()
	case int:
		return types.Int(int64(v))
	case int32:
		return types.Int(int64(v))
	case int64:
		return types.Int(v)
	case float32:
		return types.Float(float64(v))
	case float64:
		return types.Float(v)
	case string:
		return types.String(v)
	case bool:
		return types.Bool(v)
	case time.Time:
		return types.String(v.Format(time.RFC3339Nano))
	default:
		return types.String(fmt.Sprintf("%v", v))
	}
}

func fromValue(v types.Value) interface{} {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindInt:
		return v.I
	case types.KindFloat:
		return v.F
	case types.KindString:
		return v.S
	case types.KindBool:
		return v.B
	default:
		return nil
	}
}

// EncodeRow serializes a row to its on-disk BSON representation.
func EncodeRow(r Row) ([]byte, error) {
	return bson.Marshal(bson.D(r))
}

// DecodeRow parses a row back from its on-disk BSON representation.
func DecodeRow(data []byte) (Row, error) {
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return Row(d), nil
}
