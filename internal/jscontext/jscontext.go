// Package jscontext passes server-side render values to client-side script.
//
// View code wraps values it wants exposed with Tag and places them in its
// render context map alongside everything else. At render time the provider
// collects the tagged entries, serializes them into an immutable payload,
// and publishes the payload under a short opaque identifier. The identifier
// travels to the browser in a script tag attribute; client code exchanges it
// for the payload. Payloads live for the duration of their originating
// request scope and are disposed afterwards, with disposed identifiers
// remembered so late lookups can tell "expired" apart from "never existed".
package jscontext

// TaggedValue marks one render-context value for client exposure. Values
// not wrapped in a TaggedValue stay server-side.
type TaggedValue struct {
	value interface{}
}

// Tag marks a value for exposure to client script. The surrounding map key
// becomes the payload key.
func Tag(value interface{}) TaggedValue {
	return TaggedValue{value: value}
}

// Value returns the wrapped value.
func (t TaggedValue) Value() interface{} {
	return t.value
}

// Collect extracts the tagged entries of a render context map. Untagged
// entries are ignored; nested tagged values are unwrapped one level only,
// since tags mark top-level context entries.
func Collect(renderContext map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range renderContext {
		if tagged, ok := value.(TaggedValue); ok {
			out[key] = tagged.value
		}
	}
	return out
}
