package warehouse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind discriminates the decoded warehouse value variants. Integers and
// floats are kept apart so integer columns survive formatting exactly.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindTimestamp
)

// Value is the tagged representation of a single cell. A SQL NULL is
// KindNull and marshals to JSON null, never the string "null".
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Bool  bool
	Time  time.Time
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return strconv.AppendInt(nil, v.Int, 10), nil
	case KindFloat:
		return json.Marshal(v.Float)
	case KindText:
		return json.Marshal(v.Text)
	case KindBool:
		return strconv.AppendBool(nil, v.Bool), nil
	case KindTimestamp:
		return json.Marshal(v.Time.UTC().Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// DecodeValue converts a driver-level value into its tagged form. Numeric
// and decimal columns arrive from the driver as text and stay textual, which
// keeps their formatting stable across runs.
func DecodeValue(raw any) Value {
	switch typed := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: typed}
	case int64:
		return Value{Kind: KindInt, Int: typed}
	case int32:
		return Value{Kind: KindInt, Int: int64(typed)}
	case int:
		return Value{Kind: KindInt, Int: int64(typed)}
	case float64:
		return Value{Kind: KindFloat, Float: typed}
	case float32:
		return Value{Kind: KindFloat, Float: float64(typed)}
	case time.Time:
		return Value{Kind: KindTimestamp, Time: typed}
	case []byte:
		return Value{Kind: KindText, Text: string(typed)}
	case string:
		return Value{Kind: KindText, Text: typed}
	default:
		return Value{Kind: KindText, Text: fmt.Sprint(typed)}
	}
}
