package jscontext

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/vellum/internal/digest"
	"github.com/conneroisu/vellum/internal/errors"
)

// payloadDomain separates payload identifiers from every other digest
// vellum computes.
var payloadDomain = digest.NewKey("vellum.context.payload")

// IDLength is the number of hex characters in a payload identifier.
const IDLength = 16

// Payload is an immutable snapshot of the tagged values of one render.
type Payload struct {
	ID          string
	Values      map[string]json.RawMessage
	RequestID   string
	FinalizedAt time.Time
}

// JSON renders the payload as a JSON object. Keys are emitted in sorted
// order, so the same payload always serializes to the same bytes.
func (p *Payload) JSON() []byte {
	out, err := json.Marshal(p.Values)
	if err != nil {
		// Values hold pre-validated raw JSON; marshaling a map of them
		// cannot fail.
		panic("jscontext: payload serialization failed: " + err.Error())
	}
	return out
}

// Registry holds live payloads and the request scopes that own them.
//
// All state sits behind one mutex; critical sections only touch maps and
// the tombstone list, never IO. Serialization happens in Finalize before
// the lock is taken, and a payload becomes visible to Retrieve only after
// every value has encoded successfully.
type Registry struct {
	mu         sync.Mutex
	payloads   map[string]*Payload
	scopes     map[string]*scope
	tombstones *tombstoneList
	encoder    Encoder
	sequence   uint64
}

type scope struct {
	openedAt time.Time
	ids      []string
}

// RegistryStats is a point-in-time snapshot of registry occupancy.
type RegistryStats struct {
	LivePayloads int
	OpenScopes   int
	Tombstones   int
}

// NewRegistry creates a registry whose tombstone list remembers up to
// history disposed identifiers.
func NewRegistry(history int) *Registry {
	return &Registry{
		payloads:   make(map[string]*Payload),
		scopes:     make(map[string]*scope),
		tombstones: newTombstoneList(history),
	}
}

// SetEncoder installs a host serialization hook. It applies to subsequent
// Finalize calls; pass nil to remove.
func (r *Registry) SetEncoder(encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoder = encoder
}

// Begin opens the payload scope for a request. Idempotent; Finalize opens
// the scope implicitly when needed, so Begin matters mainly for making End
// and the sweep account for requests that never finalize anything.
func (r *Registry) Begin(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beginLocked(requestID)
}

func (r *Registry) beginLocked(requestID string) *scope {
	s, ok := r.scopes[requestID]
	if !ok {
		s = &scope{openedAt: time.Now()}
		r.scopes[requestID] = s
	}
	return s
}

// Finalize serializes the given entries into an immutable payload, publishes
// it under the returned identifier, and attaches it to the request's scope.
// Any value that fails to serialize aborts the whole finalize with a
// SerializationError naming the offending key; nothing is published.
func (r *Registry) Finalize(requestID string, entries map[string]interface{}) (string, error) {
	r.mu.Lock()
	hook := r.encoder
	r.mu.Unlock()

	// Encode every value before touching shared state.
	values := make(map[string]json.RawMessage, len(entries))
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw, err := encodeValue(key, entries[key], hook)
		if err != nil {
			return "", err
		}
		values[key] = raw
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	id := payloadID(requestID, r.sequence, keys, values)

	payload := &Payload{
		ID:          id,
		Values:      values,
		RequestID:   requestID,
		FinalizedAt: time.Now(),
	}

	r.payloads[id] = payload
	s := r.beginLocked(requestID)
	s.ids = append(s.ids, id)

	return id, nil
}

// Retrieve returns the payload published under id. The two failure modes
// are distinct: an identifier that was disposed after its request completed
// yields a PayloadExpiredError, an identifier never published (or disposed
// so long ago its tombstone fell off) yields a PayloadUnknownError.
func (r *Registry) Retrieve(id string) (*Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payload, ok := r.payloads[id]; ok {
		return payload, nil
	}
	if r.tombstones.Contains(id) {
		return nil, errors.NewPayloadExpiredError(id)
	}
	return nil, errors.NewPayloadUnknownError(id)
}

// End closes a request's scope and disposes every payload finalized under
// it. Disposed identifiers move to the tombstone list. Unknown request ids
// are a no-op.
func (r *Registry) End(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scopes[requestID]
	if !ok {
		return
	}
	delete(r.scopes, requestID)

	for _, id := range s.ids {
		delete(r.payloads, id)
		r.tombstones.Add(id)
	}
}

// Sweep ends every scope older than maxAge and returns how many were
// closed. It is the backstop for requests that aborted before their End;
// the server runs it on a ticker.
func (r *Registry) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	swept := 0
	for requestID, s := range r.scopes {
		if s.openedAt.After(cutoff) {
			continue
		}
		delete(r.scopes, requestID)
		for _, id := range s.ids {
			delete(r.payloads, id)
			r.tombstones.Add(id)
		}
		swept++
	}
	return swept
}

// Stats returns a snapshot of registry occupancy.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RegistryStats{
		LivePayloads: len(r.payloads),
		OpenScopes:   len(r.scopes),
		Tombstones:   r.tombstones.Len(),
	}
}

// payloadID derives the identifier for a finalized payload. The digest
// covers the serialized values plus the owning request and a registry
// sequence number, so identical payloads from different renders still get
// distinct identifiers and disposal of one can never shadow another.
func payloadID(requestID string, sequence uint64, keys []string, values map[string]json.RawMessage) string {
	parts := make([][]byte, 0, len(keys)*2+2)
	parts = append(parts, []byte(requestID), digest.Int64Bytes(int64(sequence)))
	for _, key := range keys {
		parts = append(parts, []byte(key), values[key])
	}
	return digest.HexN(payloadDomain, IDLength, parts...)
}
