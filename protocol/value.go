package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// ValueSchemaVersion is the current version of the typed value encoding.
// Frames carrying a higher version are rejected rather than misread.
const ValueSchemaVersion = 1

// TimestampLayout is the wire form for timestamp values: date, time to
// seconds, then exactly three fractional-second digits. Go's Format
// truncates the remaining digits, which is the required behavior.
const TimestampLayout = "2006-01-02 15:04:05.000"

// ValueKind discriminates the typed value union.
type ValueKind string

const (
	KindNull        ValueKind = "null"
	KindBool        ValueKind = "bool"
	KindFloat       ValueKind = "float"
	KindString      ValueKind = "string"
	KindTimestamp   ValueKind = "timestamp"
	KindList        ValueKind = "list"
	KindRows        ValueKind = "rows"
	KindDescription ValueKind = "description"
)

// ColumnDescription is one entry of a cursor description: the standard
// seven-field tuple. Fields beyond Name and TypeCode are pointers because
// the remote environment frequently cannot supply them.
type ColumnDescription struct {
	Name         string `json:"name"`
	TypeCode     string `json:"type_code"`
	DisplaySize  *int   `json:"display_size,omitempty"`
	InternalSize *int   `json:"internal_size,omitempty"`
	Precision    *int   `json:"precision,omitempty"`
	Scale        *int   `json:"scale,omitempty"`
	NullOK       *bool  `json:"null_ok,omitempty"`
}

// Value is the versioned typed wire form for request inputs and returned
// objects. Exactly one payload field is set, selected by Kind.
type Value struct {
	Version   int                 `json:"v"`
	Kind      ValueKind           `json:"kind"`
	Bool      *bool               `json:"bool,omitempty"`
	Float     *float64            `json:"float,omitempty"`
	Str       *string             `json:"str,omitempty"`
	Timestamp string              `json:"ts,omitempty"`
	Items     []Value             `json:"items,omitempty"`
	Rows      [][]Value           `json:"rows,omitempty"`
	Desc      []ColumnDescription `json:"desc,omitempty"`
}

// NullValue returns the null Value.
func NullValue() Value {
	return Value{Version: ValueSchemaVersion, Kind: KindNull}
}

// BoolValue wraps a bool.
func BoolValue(b bool) Value {
	return Value{Version: ValueSchemaVersion, Kind: KindBool, Bool: &b}
}

// FloatValue wraps a float64.
func FloatValue(f float64) Value {
	return Value{Version: ValueSchemaVersion, Kind: KindFloat, Float: &f}
}

// StringValue wraps a string.
func StringValue(s string) Value {
	return Value{Version: ValueSchemaVersion, Kind: KindString, Str: &s}
}

// TimestampValue wraps a time formatted per TimestampLayout.
func TimestampValue(t time.Time) Value {
	return Value{Version: ValueSchemaVersion, Kind: KindTimestamp, Timestamp: t.Format(TimestampLayout)}
}

// ListValue wraps an ordered sequence of values.
func ListValue(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Version: ValueSchemaVersion, Kind: KindList, Items: items}
}

// RowsValue wraps a result set: rows of column values.
func RowsValue(rows [][]Value) Value {
	if rows == nil {
		rows = [][]Value{}
	}
	return Value{Version: ValueSchemaVersion, Kind: KindRows, Rows: rows}
}

// DescriptionValue wraps a cursor description.
func DescriptionValue(desc []ColumnDescription) Value {
	if desc == nil {
		desc = []ColumnDescription{}
	}
	return Value{Version: ValueSchemaVersion, Kind: KindDescription, Desc: desc}
}

// FromNative converts a Go value into its wire Value. Scalars, times,
// []any, [][]any and []ColumnDescription are supported; anything else is an
// error so malformed inputs fail before they reach the socket.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return x, nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case int:
		return FloatValue(float64(x)), nil
	case int32:
		return FloatValue(float64(x)), nil
	case int64:
		return FloatValue(float64(x)), nil
	case string:
		return StringValue(x), nil
	case time.Time:
		return TimestampValue(x), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return FloatValue(f), nil
	case *big.Float:
		f, _ := x.Float64()
		return FloatValue(f), nil
	case []ColumnDescription:
		return DescriptionValue(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			val, err := FromNative(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = val
		}
		return ListValue(items), nil
	case [][]any:
		rows := make([][]Value, len(x))
		for i, row := range x {
			cols := make([]Value, len(row))
			for j, col := range row {
				val, err := FromNative(col)
				if err != nil {
					return Value{}, err
				}
				cols[j] = val
			}
			rows[i] = cols
		}
		return RowsValue(rows), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// Native converts a wire Value back into a plain Go value: nil, bool,
// float64, string (timestamps stay in wire format), []any, [][]any or
// []ColumnDescription.
func (v Value) Native() any {
	switch v.Kind {
	case KindBool:
		if v.Bool != nil {
			return *v.Bool
		}
		return false
	case KindFloat:
		if v.Float != nil {
			return *v.Float
		}
		return float64(0)
	case KindString:
		if v.Str != nil {
			return *v.Str
		}
		return ""
	case KindTimestamp:
		return v.Timestamp
	case KindList:
		items := make([]any, len(v.Items))
		for i, item := range v.Items {
			items[i] = item.Native()
		}
		return items
	case KindRows:
		rows := make([][]any, len(v.Rows))
		for i, row := range v.Rows {
			cols := make([]any, len(row))
			for j, col := range row {
				cols[j] = col.Native()
			}
			rows[i] = cols
		}
		return rows
	case KindDescription:
		return v.Desc
	default:
		return nil
	}
}

// EncodeValue serializes a Value and base64-wraps it so the result is safe
// to embed as a JSON string inside a request or response envelope.
func EncodeValue(v Value) (string, error) {
	if v.Version == 0 {
		v.Version = ValueSchemaVersion
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeValue reverses EncodeValue, rejecting unknown schema versions.
func DecodeValue(encoded string) (Value, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	if v.Version > ValueSchemaVersion || v.Version < 1 {
		return Value{}, fmt.Errorf("unsupported value schema version %d", v.Version)
	}
	if v.Kind == "" {
		return Value{}, fmt.Errorf("value missing kind")
	}
	return v, nil
}
