package jscontext

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vellum/internal/errors"
)

func TestFinalizeAndRetrieve(t *testing.T) {
	r := NewRegistry(16)
	r.Begin("req-1")

	id, err := r.Finalize("req-1", map[string]interface{}{
		"user": "ada",
		"hits": 3,
	})
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]{16}$", id)

	payload, err := r.Retrieve(id)
	require.NoError(t, err)
	assert.Equal(t, id, payload.ID)
	assert.Equal(t, "req-1", payload.RequestID)
	assert.False(t, payload.FinalizedAt.IsZero())
	assert.JSONEq(t, `{"user":"ada","hits":3}`, string(payload.JSON()))
}

func TestRetrieve_UnknownVsExpired(t *testing.T) {
	r := NewRegistry(16)

	id, err := r.Finalize("req-1", map[string]interface{}{"k": 1})
	require.NoError(t, err)

	t.Run("never seen is unknown", func(t *testing.T) {
		_, err := r.Retrieve("0000000000000000")
		require.Error(t, err)
		assert.True(t, errors.IsPayloadUnknown(err))
		assert.False(t, errors.IsPayloadExpired(err))
	})

	t.Run("disposed is expired", func(t *testing.T) {
		r.End("req-1")
		_, err := r.Retrieve(id)
		require.Error(t, err)
		assert.True(t, errors.IsPayloadExpired(err))
		assert.False(t, errors.IsPayloadUnknown(err))
	})
}

func TestFinalize_AtomicOnFailure(t *testing.T) {
	r := NewRegistry(16)

	_, err := r.Finalize("req-1", map[string]interface{}{
		"fine":     "value",
		"offender": make(chan int),
	})
	require.Error(t, err)

	var ve *errors.VellumError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, errors.ErrCodeSerialization, ve.Code)
	assert.Contains(t, err.Error(), `"offender"`)

	// Nothing was published: the registry holds no payloads at all.
	assert.Zero(t, r.Stats().LivePayloads)
}

func TestFinalize_DistinctIDsForIdenticalEntries(t *testing.T) {
	r := NewRegistry(16)
	entries := map[string]interface{}{"k": "same"}

	a, err := r.Finalize("req-1", entries)
	require.NoError(t, err)
	b, err := r.Finalize("req-1", entries)
	require.NoError(t, err)
	c, err := r.Finalize("req-2", entries)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "same scope, repeated finalize")
	assert.NotEqual(t, a, c, "different scopes")
	assert.NotEqual(t, b, c)

	// Disposing one request's payloads must not affect the other's.
	r.End("req-1")
	_, err = r.Retrieve(c)
	assert.NoError(t, err)
}

func TestEnd(t *testing.T) {
	r := NewRegistry(16)

	first, err := r.Finalize("req-1", map[string]interface{}{"n": 1})
	require.NoError(t, err)
	second, err := r.Finalize("req-1", map[string]interface{}{"n": 2})
	require.NoError(t, err)

	r.End("req-1")

	for _, id := range []string{first, second} {
		_, err := r.Retrieve(id)
		assert.True(t, errors.IsPayloadExpired(err))
	}

	stats := r.Stats()
	assert.Zero(t, stats.LivePayloads)
	assert.Zero(t, stats.OpenScopes)
	assert.Equal(t, 2, stats.Tombstones)

	// Ending unknown or already-ended scopes is a no-op.
	r.End("req-1")
	r.End("ghost")
}

func TestBegin_TracksScopesWithoutPayloads(t *testing.T) {
	r := NewRegistry(16)

	r.Begin("req-1")
	r.Begin("req-1") // idempotent
	assert.Equal(t, 1, r.Stats().OpenScopes)

	r.End("req-1")
	assert.Zero(t, r.Stats().OpenScopes)
}

func TestSweep(t *testing.T) {
	r := NewRegistry(16)

	id, err := r.Finalize("aborted", map[string]interface{}{"k": 1})
	require.NoError(t, err)

	// Fresh scopes survive a sweep with a generous age bound.
	assert.Zero(t, r.Sweep(time.Hour))
	_, err = r.Retrieve(id)
	require.NoError(t, err)

	// A zero age bound sweeps everything open.
	swept := r.Sweep(0)
	assert.Equal(t, 1, swept)

	_, err = r.Retrieve(id)
	assert.True(t, errors.IsPayloadExpired(err))
}

func TestTombstoneBound(t *testing.T) {
	r := NewRegistry(3)

	ids := make([]string, 5)
	for i := range ids {
		requestID := fmt.Sprintf("req-%d", i)
		id, err := r.Finalize(requestID, map[string]interface{}{"n": i})
		require.NoError(t, err)
		r.End(requestID)
		ids[i] = id
	}

	// Only the 3 most recent tombstones survive; the oldest two have
	// degraded from expired to unknown.
	_, err := r.Retrieve(ids[0])
	assert.True(t, errors.IsPayloadUnknown(err))
	_, err = r.Retrieve(ids[1])
	assert.True(t, errors.IsPayloadUnknown(err))
	for _, id := range ids[2:] {
		_, err = r.Retrieve(id)
		assert.True(t, errors.IsPayloadExpired(err))
	}
}

func TestSetEncoder(t *testing.T) {
	r := NewRegistry(16)
	r.SetEncoder(func(value interface{}) (json.RawMessage, bool, error) {
		if s, ok := value.(string); ok {
			return json.RawMessage(`"hooked:` + s + `"`), true, nil
		}
		return nil, false, nil
	})

	id, err := r.Finalize("req-1", map[string]interface{}{"k": "v"})
	require.NoError(t, err)

	payload, err := r.Retrieve(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"hooked:v"}`, string(payload.JSON()))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(256)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				requestID := fmt.Sprintf("req-%d-%d", g, i)
				r.Begin(requestID)

				id, err := r.Finalize(requestID, map[string]interface{}{
					"g": g,
					"i": i,
				})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := r.Retrieve(id); err != nil {
					t.Error(err)
					return
				}
				r.End(requestID)
				if _, err := r.Retrieve(id); !errors.IsPayloadExpired(err) {
					t.Errorf("expected expired after End, got %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	stats := r.Stats()
	assert.Zero(t, stats.LivePayloads)
	assert.Zero(t, stats.OpenScopes)
	assert.Equal(t, 256, stats.Tombstones)
}

func TestPayloadJSON_Deterministic(t *testing.T) {
	r := NewRegistry(16)

	id, err := r.Finalize("req-1", map[string]interface{}{
		"zebra": 1, "alpha": 2, "mike": 3,
	})
	require.NoError(t, err)

	payload, err := r.Retrieve(id)
	require.NoError(t, err)

	first := string(payload.JSON())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, string(payload.JSON()))
	}
	assert.Equal(t, `{"alpha":2,"mike":3,"zebra":1}`, first, "keys emit sorted")
}
