package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind tags the single populated member of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindTimestamp
	KindArray
	KindMap
)

// Value is the tagged-union wire representation of a document field.
// Exactly one member is meaningful, selected by Kind.
type Value struct {
	Kind      Kind
	String    string
	Integer   int64
	Double    float64
	Boolean   bool
	Timestamp time.Time
	Array     []Value
	Map       map[string]Value
}

func StringValue(s string) Value       { return Value{Kind: KindString, String: s} }
func IntegerValue(i int64) Value       { return Value{Kind: KindInteger, Integer: i} }
func DoubleValue(f float64) Value      { return Value{Kind: KindDouble, Double: f} }
func BooleanValue(b bool) Value        { return Value{Kind: KindBoolean, Boolean: b} }
func NullValue() Value                 { return Value{Kind: KindNull} }
func TimestampValue(t time.Time) Value { return Value{Kind: KindTimestamp, Timestamp: t.UTC()} }
func ArrayValue(vs ...Value) Value     { return Value{Kind: KindArray, Array: vs} }
func MapValue(m map[string]Value) Value {
	return Value{Kind: KindMap, Map: m}
}

type arrayWire struct {
	Values []Value `json:"values,omitempty"`
}

type mapWire struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var m map[string]any
	switch v.Kind {
	case KindNull:
		m = map[string]any{"nullValue": nil}
	case KindString:
		m = map[string]any{"stringValue": v.String}
	case KindInteger:
		m = map[string]any{"integerValue": strconv.FormatInt(v.Integer, 10)}
	case KindDouble:
		if math.IsNaN(v.Double) || math.IsInf(v.Double, 0) {
			return nil, fmt.Errorf("docstore: double %v is not representable", v.Double)
		}
		m = map[string]any{"doubleValue": v.Double}
	case KindBoolean:
		m = map[string]any{"booleanValue": v.Boolean}
	case KindTimestamp:
		m = map[string]any{"timestampValue": v.Timestamp.UTC().Format(time.RFC3339Nano)}
	case KindArray:
		m = map[string]any{"arrayValue": arrayWire{Values: v.Array}}
	case KindMap:
		m = map[string]any{"mapValue": mapWire{Fields: v.Map}}
	default:
		return nil, fmt.Errorf("docstore: unknown value kind %d", v.Kind)
	}
	return json.Marshal(m)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("docstore: value: %w", err)
	}
	// Unknown members (geoPoint, bytes, reference) decode as null.
	*v = Value{Kind: KindNull}
	for key, msg := range raw {
		switch key {
		case "nullValue":
			*v = NullValue()
		case "stringValue":
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("docstore: stringValue: %w", err)
			}
			*v = StringValue(s)
		case "integerValue":
			i, err := parseInteger(msg)
			if err != nil {
				return err
			}
			*v = IntegerValue(i)
		case "doubleValue":
			var f float64
			if err := json.Unmarshal(msg, &f); err != nil {
				return fmt.Errorf("docstore: doubleValue: %w", err)
			}
			*v = DoubleValue(f)
		case "booleanValue":
			var bv bool
			if err := json.Unmarshal(msg, &bv); err != nil {
				return fmt.Errorf("docstore: booleanValue: %w", err)
			}
			*v = BooleanValue(bv)
		case "timestampValue":
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("docstore: timestampValue: %w", err)
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("docstore: timestampValue: %w", err)
			}
			*v = TimestampValue(ts)
		case "arrayValue":
			var a arrayWire
			if err := json.Unmarshal(msg, &a); err != nil {
				return fmt.Errorf("docstore: arrayValue: %w", err)
			}
			*v = Value{Kind: KindArray, Array: a.Values}
		case "mapValue":
			var mw mapWire
			if err := json.Unmarshal(msg, &mw); err != nil {
				return fmt.Errorf("docstore: mapValue: %w", err)
			}
			*v = Value{Kind: KindMap, Map: mw.Fields}
		default:
			continue
		}
		return nil
	}
	return nil
}

// integerValue is a decimal string on the wire, but tolerate bare numbers.
func parseInteger(msg json.RawMessage) (int64, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) > 0 && msg[0] == '"' {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return 0, fmt.Errorf("docstore: integerValue: %w", err)
		}
		msg = []byte(s)
	}
	i, err := strconv.ParseInt(string(msg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("docstore: integerValue: %w", err)
	}
	return i, nil
}

// Decode converts a wire value into native Go values: nil, string, int64,
// float64, bool, time.Time, []any and map[string]any.
func Decode(v Value) any {
	switch v.Kind {
	case KindString:
		return v.String
	case KindInteger:
		return v.Integer
	case KindDouble:
		return v.Double
	case KindBoolean:
		return v.Boolean
	case KindTimestamp:
		return v.Timestamp
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = Decode(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = Decode(e)
		}
		return out
	default:
		return nil
	}
}

// Encode converts a native value into its wire form. Integral Go numbers
// become integers, floats become doubles. Unsupported types are stringified.
func Encode(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BooleanValue(t)
	case int:
		return IntegerValue(int64(t))
	case int32:
		return IntegerValue(int64(t))
	case int64:
		return IntegerValue(t)
	case uint32:
		return IntegerValue(int64(t))
	case float32:
		return DoubleValue(float64(t))
	case float64:
		return DoubleValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntegerValue(i)
		}
		if f, err := t.Float64(); err == nil {
			return DoubleValue(f)
		}
		return StringValue(t.String())
	case time.Time:
		return TimestampValue(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Encode(e)
		}
		return Value{Kind: KindArray, Array: out}
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = StringValue(e)
		}
		return Value{Kind: KindArray, Array: out}
	case []map[string]any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Encode(e)
		}
		return Value{Kind: KindArray, Array: out}
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = Encode(e)
		}
		return Value{Kind: KindMap, Map: out}
	case map[string]string:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = StringValue(e)
		}
		return Value{Kind: KindMap, Map: out}
	default:
		return StringValue(fmt.Sprint(t))
	}
}

// Fields encodes a native field map for Update.
func Fields(m map[string]any) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = Encode(v)
	}
	return out
}

// Equal reports deep equality of two wire values. Timestamps compare by instant.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindString:
		return a.String == b.String
	case KindInteger:
		return a.Integer == b.Integer
	case KindDouble:
		return a.Double == b.Double
	case KindBoolean:
		return a.Boolean == b.Boolean
	case KindTimestamp:
		return a.Timestamp.Equal(b.Timestamp)
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
