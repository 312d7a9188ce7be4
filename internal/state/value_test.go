package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUnmarshalValue_IntegersStayExact verifies large int64s survive a
// decode without float64 precision loss.
func TestUnmarshalValue_IntegersStayExact(t *testing.T) {
	v, err := UnmarshalValue([]byte("9007199254740993")) // 2^53 + 1
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), v)
}

func TestUnmarshalValue_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"string", `"hello"`, String("hello")},
		{"bool", `true`, Bool(true)},
		{"null", `null`, Null{}},
		{"int", `42`, Int(42)},
		{"negative int", `-7`, Int(-7)},
		{"float", `1.5`, Float(1.5)},
		{"list", `[1,"a"]`, List{Int(1), String("a")}},
		{"record", `{"x":1}`, Record{"x": Int(1)}},
		{"nested", `{"a":{"b":[true]}}`, Record{"a": Record{"b": List{Bool(true)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := UnmarshalValue([]byte(tt.input))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, v), "got %#v", v)
		})
	}
}

// TestRecord_RoundTrip verifies marshal-then-unmarshal is structurally
// lossless, including integer width.
func TestRecord_RoundTrip(t *testing.T) {
	original := Record{
		"name":  String("match-1"),
		"round": Int(3),
		"big":   Int(1 << 60),
		"ratio": Float(0.25),
		"tags":  List{String("a"), String("b")},
		"meta":  Record{"open": Bool(true), "note": Null{}},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(original, decoded))
}

func TestEqual_NumericCrossType(t *testing.T) {
	assert.True(t, Equal(Int(2), Float(2.0)))
	assert.False(t, Equal(Int(2), Float(2.5)))
	assert.False(t, Equal(Int(2), String("2")))
}

func TestEqual_AbsentOnlyEqualsAbsent(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Null{}))
	assert.False(t, Equal(Null{}, nil))
	assert.True(t, Equal(Null{}, Null{}))
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare(Int(1), Int(2))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare(Float(3.5), Int(3))
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	// Absent and non-numeric operands compare falsy, never error.
	_, ok = Compare(nil, Int(1))
	assert.False(t, ok)
	_, ok = Compare(String("a"), String("b"))
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(Null{}))
	assert.False(t, Truthy(Bool(false)))
	assert.False(t, Truthy(Int(0)))
	assert.False(t, Truthy(String("")))
	assert.False(t, Truthy(List{}))

	assert.True(t, Truthy(Bool(true)))
	assert.True(t, Truthy(Int(-1)))
	assert.True(t, Truthy(String("x")))
	assert.True(t, Truthy(Record{"k": Int(1)}))
}

func TestCloneValue_Independent(t *testing.T) {
	original := Record{"scores": List{Int(1), Int(2)}}
	clone := CloneValue(original).(Record)

	clone["scores"].(List)[0] = Int(99)
	assert.Equal(t, Int(1), original["scores"].(List)[0])
}

func TestFromGo_YAMLShapes(t *testing.T) {
	v, err := FromGo(map[string]any{
		"count": 3,
		"whole": float64(10), // yaml/json decoders hand integers over as float64
		"frac":  1.25,
		"items": []any{"a", true},
	})
	require.NoError(t, err)

	rec, ok := v.(Record)
	require.True(t, ok)
	assert.Equal(t, Int(3), rec["count"])
	assert.Equal(t, Int(10), rec["whole"])
	assert.Equal(t, Float(1.25), rec["frac"])
	assert.True(t, Equal(List{String("a"), Bool(true)}, rec["items"]))
}
