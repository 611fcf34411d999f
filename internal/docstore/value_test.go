package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_WireFormat(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 30, 0, 123000000, time.UTC)
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", NullValue(), `{"nullValue":null}`},
		{"string", StringValue("paid"), `{"stringValue":"paid"}`},
		{"integer as string", IntegerValue(50000), `{"integerValue":"50000"}`},
		{"double", DoubleValue(1.5), `{"doubleValue":1.5}`},
		{"boolean", BooleanValue(true), `{"booleanValue":true}`},
		{"timestamp", TimestampValue(ts), `{"timestampValue":"2025-03-01T10:30:00.123Z"}`},
		{"empty array", ArrayValue(), `{"arrayValue":{}}`},
		{"array", ArrayValue(StringValue("a")), `{"arrayValue":{"values":[{"stringValue":"a"}]}}`},
		{"map", MapValue(map[string]Value{"n": IntegerValue(1)}), `{"mapValue":{"fields":{"n":{"integerValue":"1"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var back Value
			require.NoError(t, json.Unmarshal(b, &back))
			assert.True(t, Equal(tt.in, back), "wire round trip of %s", tt.want)
		})
	}
}

func TestValue_UnmarshalTolerance(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"integerValue":42}`), &v))
	assert.Equal(t, IntegerValue(42), v)

	require.NoError(t, json.Unmarshal([]byte(`{"geoPointValue":{"latitude":1}}`), &v))
	assert.Equal(t, KindNull, v.Kind)

	require.Error(t, json.Unmarshal([]byte(`{"integerValue":"4x"}`), &v))
}

func TestDecode_VariantArray(t *testing.T) {
	raw := `{"arrayValue":{"values":[
		{"mapValue":{"fields":{
			"id":{"stringValue":"v1"},
			"price":{"integerValue":"25000"},
			"stockItems":{"arrayValue":{"values":[
				{"mapValue":{"fields":{"content":{"stringValue":"KEY-1"},"note":{"stringValue":""}}}}
			]}}
		}}}
	]}}`
	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	got := Decode(v)
	want := []any{
		map[string]any{
			"id":    "v1",
			"price": int64(25000),
			"stockItems": []any{
				map[string]any{"content": "KEY-1", "note": ""},
			},
		},
	}
	assert.Equal(t, want, got)

	b, err := json.Marshal(Encode(got))
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(b))
}

func TestEncode_NativeTypes(t *testing.T) {
	assert.Equal(t, KindInteger, Encode(3).Kind)
	assert.Equal(t, KindInteger, Encode(json.Number("7")).Kind)
	assert.Equal(t, KindDouble, Encode(json.Number("7.5")).Kind)
	assert.Equal(t, KindDouble, Encode(2.25).Kind)
	assert.Equal(t, KindTimestamp, Encode(time.Now()).Kind)
	assert.Equal(t, KindArray, Encode([]map[string]any{{"content": "x"}}).Kind)
	assert.Equal(t, StringValue("[1 2]"), Encode([2]int{1, 2}))
}

func genLeaf() gopter.Gen {
	return gen.OneGenOf(
		gen.AlphaString().Map(func(s string) Value { return StringValue(s) }),
		gen.Int64().Map(func(i int64) Value { return IntegerValue(i) }),
		gen.Float64Range(-1e9, 1e9).Map(func(f float64) Value { return DoubleValue(f) }),
		gen.Bool().Map(func(b bool) Value { return BooleanValue(b) }),
		gen.Int64Range(0, 4_000_000_000).Map(func(s int64) Value { return TimestampValue(time.Unix(s, 0)) }),
		gen.Const(NullValue()),
	)
}

func genStockDoc() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.SliceOf(gen.MapOf(gen.Identifier(), genLeaf()))).
		Map(func(m map[string][]map[string]Value) Value {
			fields := make(map[string]Value, len(m))
			for k, rows := range m {
				arr := make([]Value, len(rows))
				for i, row := range rows {
					arr[i] = MapValue(row)
				}
				fields[k] = Value{Kind: KindArray, Array: arr}
			}
			return MapValue(fields)
		})
}

func TestCodec_RoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("encode(decode(x)) == x for leaves", prop.ForAll(
		func(v Value) bool { return Equal(Encode(Decode(v)), v) },
		genLeaf(),
	))

	properties.Property("encode(decode(x)) == x for nested lists of maps", prop.ForAll(
		func(v Value) bool { return Equal(Encode(Decode(v)), v) },
		genStockDoc(),
	))

	properties.Property("json wire round trip preserves value", prop.ForAll(
		func(v Value) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return false
			}
			var back Value
			if err := json.Unmarshal(b, &back); err != nil {
				return false
			}
			return Equal(back, v)
		},
		genStockDoc(),
	))

	properties.TestingRun(t)
}
