package sigenergy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNumericTypes(t *testing.T) {
	cases := []struct {
		name  string
		spec  RegisterSpec
		words []uint16
		want  float64
	}{
		{"u16 with gain", reg("soc", 0, 1, U16, 10, "%", InputTable, ReadOnly), []uint16{853}, 85.3},
		{"s16 negative", reg("temp", 0, 1, S16, 10, "°C", InputTable, ReadOnly), []uint16{0xFFF6}, -1.0},
		{"u32", reg("cap", 0, 2, U32, 100, "kWh", InputTable, ReadOnly), []uint16{0x0001, 0x86A0}, 1000.0},
		{"s32 negative power", reg("p", 0, 2, S32, 1000, "kW", InputTable, ReadOnly), []uint16{0xFFFF, 0xEC78}, -5.0},
		{"u64", reg("e", 0, 4, U64, 100, "kWh", InputTable, ReadOnly), []uint16{0, 0, 0x0001, 0x86A0}, 1000.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decode(tc.spec, tc.words)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, v.Float, 1e-9)
		})
	}
}

func TestDecodeString(t *testing.T) {
	spec := reg("model", 0, 4, String, 1, "", InputTable, ReadOnly)
	v, err := Decode(spec, []uint16{0x5369, 0x6745, 0x6E00, 0x0000})
	require.NoError(t, err)
	assert.Equal(t, "SigEn", v.Text)
	assert.True(t, v.IsText())
}

func TestDecodeWordCountMismatch(t *testing.T) {
	spec := reg("p", 0, 2, S32, 1000, "kW", InputTable, ReadOnly)
	_, err := Decode(spec, []uint16{1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, spec := range []RegisterSpec{
		reg("a", 0, 1, U16, 100, "A", HoldingTable, ReadWrite),
		reg("b", 0, 1, S16, 100, "%", HoldingTable, ReadWrite),
		reg("c", 0, 2, U32, 1000, "kW", HoldingTable, ReadWrite),
		reg("d", 0, 2, S32, 1000, "kW", HoldingTable, ReadWrite),
	} {
		words, err := Encode(spec, 12.5)
		require.NoError(t, err, spec.Name)
		v, err := Decode(spec, words)
		require.NoError(t, err, spec.Name)
		assert.InDelta(t, 12.5, v.Float, 1e-9, spec.Name)
	}
}

func TestEncodeNegative(t *testing.T) {
	spec := reg("p", 0, 2, S32, 1000, "kW", HoldingTable, ReadWrite)
	words, err := Encode(spec, -7.25)
	require.NoError(t, err)
	v, err := Decode(spec, words)
	require.NoError(t, err)
	assert.InDelta(t, -7.25, v.Float, 1e-9)
}

func TestEncodeRejectsTypeOverflow(t *testing.T) {
	spec := reg("i", 0, 1, U16, 100, "A", HoldingTable, ReadWrite)
	_, err := Encode(spec, -1)
	assert.ErrorIs(t, err, ErrRejectedValue)

	_, err = Encode(spec, 1e6)
	assert.ErrorIs(t, err, ErrRejectedValue)
}

func TestEncodeRejectsString(t *testing.T) {
	spec := reg("s", 0, 4, String, 1, "", HoldingTable, ReadWrite)
	_, err := Encode(spec, 1)
	assert.ErrorIs(t, err, ErrRejectedValue)
}
