package jscontext

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vellum/internal/errors"
)

func TestEncodeValue_Builtins(t *testing.T) {
	moment := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	id := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, `null`},
		{"string", "hello", `"hello"`},
		{"int", 42, `42`},
		{"float", 1.5, `1.5`},
		{"bool", true, `true`},
		{"slice", []int{1, 2, 3}, `[1,2,3]`},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
		{"time", moment, `"2025-03-14T09:26:53.589793Z"`},
		{"duration as seconds", 1500 * time.Millisecond, `1.5`},
		{"big int", big.NewInt(12345678901234567), `12345678901234567`},
		{"huge big int", new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), `1000000000000000000000000000000`},
		{"big float", big.NewFloat(2.5), `2.5`},
		{"uuid", id, `"01234567-89ab-cdef-0123-456789abcdef"`},
		{"nil big int", (*big.Int)(nil), `null`},
		{"nil big float", (*big.Float)(nil), `null`},
		{"nested tag", Tag(Tag("inner")), `"inner"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := encodeValue("k", tt.value, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
			assert.True(t, json.Valid(raw))
		})
	}
}

func TestEncodeValue_Failures(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"channel", make(chan int)},
		{"function", func() {}},
		{"infinite big float", big.NewFloat(0).SetInf(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encodeValue("offender", tt.value, nil)
			require.Error(t, err)

			var ve *errors.VellumError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, errors.ErrCodeSerialization, ve.Code)
			assert.Contains(t, err.Error(), `"offender"`, "error must name the key")
		})
	}
}

func TestEncodeValue_Hook(t *testing.T) {
	type temperature float64

	hook := func(value interface{}) (json.RawMessage, bool, error) {
		if temp, ok := value.(temperature); ok {
			return json.RawMessage(fmt.Sprintf(`{"celsius":%g}`, float64(temp))), true, nil
		}
		return nil, false, nil
	}

	t.Run("hook handles its type", func(t *testing.T) {
		raw, err := encodeValue("k", temperature(21.5), hook)
		require.NoError(t, err)
		assert.JSONEq(t, `{"celsius":21.5}`, string(raw))
	})

	t.Run("hook declines, builtins apply", func(t *testing.T) {
		raw, err := encodeValue("k", "plain", hook)
		require.NoError(t, err)
		assert.Equal(t, `"plain"`, string(raw))
	})

	t.Run("hook overrides builtins", func(t *testing.T) {
		override := func(value interface{}) (json.RawMessage, bool, error) {
			if _, ok := value.(time.Time); ok {
				return json.RawMessage(`"epoch"`), true, nil
			}
			return nil, false, nil
		}
		raw, err := encodeValue("k", time.Now(), override)
		require.NoError(t, err)
		assert.Equal(t, `"epoch"`, string(raw))
	})

	t.Run("hook error fails encode", func(t *testing.T) {
		failing := func(value interface{}) (json.RawMessage, bool, error) {
			return nil, false, fmt.Errorf("refused")
		}
		_, err := encodeValue("k", 1, failing)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refused")
	})

	t.Run("hook returning invalid JSON fails encode", func(t *testing.T) {
		broken := func(value interface{}) (json.RawMessage, bool, error) {
			return json.RawMessage(`{not json`), true, nil
		}
		_, err := encodeValue("k", 1, broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}
