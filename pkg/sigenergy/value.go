package sigenergy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is one decoded register reading. Numeric registers carry Float (gain
// already applied); String registers carry Text.
type Value struct {
	Type  DataType
	Float float64
	Text  string
}

func (v Value) IsText() bool {
	return v.Type == String
}

func (v Value) String() string {
	if v.IsText() {
		return v.Text
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

// Decode converts raw big-endian register words into an engineering value
// according to the spec's type and gain.
func Decode(spec RegisterSpec, words []uint16) (Value, error) {
	if uint16(len(words)) != spec.Words {
		return Value{}, fmt.Errorf("%w: register %s: got %d words, want %d",
			ErrMalformed, spec.Name, len(words), spec.Words)
	}
	switch spec.Type {
	case U16:
		return numeric(spec, float64(words[0])), nil
	case S16:
		return numeric(spec, float64(int16(words[0]))), nil
	case U32:
		return numeric(spec, float64(join32(words))), nil
	case S32:
		return numeric(spec, float64(int32(join32(words)))), nil
	case U64:
		return numeric(spec, float64(join64(words))), nil
	case String:
		return Value{Type: String, Text: decodeString(words)}, nil
	}
	return Value{}, fmt.Errorf("%w: register %s: unknown data type", ErrMalformed, spec.Name)
}

// Encode converts an engineering value into raw register words, the inverse
// of Decode. Used by the write path.
func Encode(spec RegisterSpec, value float64) ([]uint16, error) {
	raw := math.Round(value * spec.Gain)
	switch spec.Type {
	case U16:
		if raw < 0 || raw > math.MaxUint16 {
			return nil, fmt.Errorf("%w: register %s: %v", ErrRejectedValue, spec.Name, value)
		}
		return []uint16{uint16(raw)}, nil
	case S16:
		if raw < math.MinInt16 || raw > math.MaxInt16 {
			return nil, fmt.Errorf("%w: register %s: %v", ErrRejectedValue, spec.Name, value)
		}
		return []uint16{uint16(int16(raw))}, nil
	case U32:
		if raw < 0 || raw > math.MaxUint32 {
			return nil, fmt.Errorf("%w: register %s: %v", ErrRejectedValue, spec.Name, value)
		}
		return split32(uint32(raw)), nil
	case S32:
		if raw < math.MinInt32 || raw > math.MaxInt32 {
			return nil, fmt.Errorf("%w: register %s: %v", ErrRejectedValue, spec.Name, value)
		}
		return split32(uint32(int32(raw))), nil
	case U64:
		if raw < 0 {
			return nil, fmt.Errorf("%w: register %s: %v", ErrRejectedValue, spec.Name, value)
		}
		v := uint64(raw)
		return []uint16{
			uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v),
		}, nil
	}
	return nil, fmt.Errorf("%w: register %s is not numeric", ErrRejectedValue, spec.Name)
}

func numeric(spec RegisterSpec, raw float64) Value {
	gain := spec.Gain
	if gain == 0 {
		gain = 1
	}
	return Value{Type: spec.Type, Float: raw / gain}
}

func join32(words []uint16) uint32 {
	return uint32(words[0])<<16 | uint32(words[1])
}

func join64(words []uint16) uint64 {
	return uint64(words[0])<<48 | uint64(words[1])<<32 | uint64(words[2])<<16 | uint64(words[3])
}

func split32(v uint32) []uint16 {
	return []uint16{uint16(v >> 16), uint16(v)}
}

func decodeString(words []uint16) string {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = append(buf, byte(w>>8), byte(w))
	}
	if i := strings.IndexByte(string(buf), 0x00); i >= 0 {
		buf = buf[:i]
	}
	return strings.TrimSpace(string(buf))
}
