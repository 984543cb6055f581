package bridge

import (
	"fmt"
	"math/big"
	"time"

	"github.com/lakefront-db/sparkbridge/protocol"
)

// CoerceBinding narrows a native binding value to the wire shape the
// remote engine accepts. Every numeric type becomes a float, timestamps
// are formatted with millisecond precision, and everything else passes
// through unchanged.
func CoerceBinding(v any) (protocol.Value, error) {
	switch t := v.(type) {
	case nil:
		return protocol.NullValue(), nil
	case bool:
		return protocol.BoolValue(t), nil
	case int:
		return protocol.FloatValue(float64(t)), nil
	case int32:
		return protocol.FloatValue(float64(t)), nil
	case int64:
		return protocol.FloatValue(float64(t)), nil
	case float32:
		return protocol.FloatValue(float64(t)), nil
	case float64:
		return protocol.FloatValue(t), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(t).Float64()
		return protocol.FloatValue(f), nil
	case *big.Float:
		f, _ := t.Float64()
		return protocol.FloatValue(f), nil
	case *big.Rat:
		f, _ := t.Float64()
		return protocol.FloatValue(f), nil
	case time.Time:
		return protocol.StringValue(t.Format(protocol.TimestampLayout)), nil
	case string:
		return protocol.StringValue(t), nil
	case protocol.Value:
		return t, nil
	default:
		return protocol.Value{}, fmt.Errorf("unsupported binding type %T", v)
	}
}

// CoerceBindings coerces a full binding list. A nil list yields an empty
// list value so the remote always receives a bindings input.
func CoerceBindings(bindings []any) (protocol.Value, error) {
	items := make([]protocol.Value, 0, len(bindings))
	for i, b := range bindings {
		v, err := CoerceBinding(b)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("binding %d: %w", i, err)
		}
		items = append(items, v)
	}
	return protocol.ListValue(items), nil
}
