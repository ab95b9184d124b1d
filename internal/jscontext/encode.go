package jscontext

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/vellum/internal/errors"
)

// Encoder lets a host override serialization for types the built-in chain
// does not know. It runs before the built-ins for every value and reports
// ok=false to decline. Returning an error fails the whole finalize.
type Encoder func(value interface{}) (json.RawMessage, bool, error)

// encodeValue serializes one payload value. The chain is: host hook, then
// the extended built-ins (time, duration, big numbers, UUIDs), then plain
// encoding/json. Failures carry the payload key so the author can find the
// offending context entry.
func encodeValue(key string, value interface{}, hook Encoder) (json.RawMessage, error) {
	if hook != nil {
		raw, ok, err := hook(value)
		if err != nil {
			return nil, errors.NewSerializationError(key, err)
		}
		if ok {
			if !json.Valid(raw) {
				return nil, errors.NewSerializationError(key,
					fmt.Errorf("encoder hook produced invalid JSON"))
			}
			return raw, nil
		}
	}

	switch v := value.(type) {
	case nil:
		return json.RawMessage("null"), nil

	case TaggedValue:
		// Double tagging is harmless; unwrap and encode the inner value.
		return encodeValue(key, v.value, hook)

	case time.Time:
		return jsonMarshal(key, v.Format(time.RFC3339Nano))

	case time.Duration:
		return jsonMarshal(key, v.Seconds())

	case *big.Int:
		if v == nil {
			return json.RawMessage("null"), nil
		}
		// The decimal text form of a big.Int is a valid JSON number of
		// arbitrary precision.
		return json.RawMessage(v.Text(10)), nil

	case *big.Float:
		if v == nil {
			return json.RawMessage("null"), nil
		}
		if v.IsInf() {
			return nil, errors.NewSerializationError(key,
				fmt.Errorf("cannot encode infinite big.Float"))
		}
		return json.RawMessage(v.Text('g', -1)), nil

	case uuid.UUID:
		return jsonMarshal(key, v.String())

	default:
		return jsonMarshal(key, value)
	}
}

func jsonMarshal(key string, value interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewSerializationError(key, err)
	}
	return raw, nil
}
