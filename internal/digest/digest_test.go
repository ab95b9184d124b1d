package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKey(t *testing.T) {
	key := NewKey("vellum.test")
	assert.Equal(t, byte('v'), key[0])
	assert.Equal(t, byte('t'), key[10])
	assert.Equal(t, byte(0), key[11], "remainder is zero padding")

	assert.Panics(t, func() {
		NewKey("this domain name is far too long to fit the key")
	})
}

func TestSum_DomainSeparation(t *testing.T) {
	data := []byte("identical input")

	a := Sum(NewKey("vellum.domain.a"), data)
	b := Sum(NewKey("vellum.domain.b"), data)

	assert.NotEqual(t, a, b, "different domains must not collide")
	assert.Equal(t, a, Sum(NewKey("vellum.domain.a"), data), "same domain is deterministic")
}

func TestSum_Concatenation(t *testing.T) {
	key := NewKey("vellum.test")

	joined := Sum(key, []byte("ab"), []byte("cd"))
	single := Sum(key, []byte("abcd"))
	assert.Equal(t, single, joined, "multi-slice input digests as concatenation")
}

func TestHexN(t *testing.T) {
	key := NewKey("vellum.test")

	s := HexN(key, 12, []byte("content"))
	assert.Len(t, s, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", s)

	longer := HexN(key, 16, []byte("content"))
	assert.Equal(t, s, longer[:12], "prefixes agree across lengths")
}

func TestInt64Bytes(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, Int64Bytes(0))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, Int64Bytes(1))
	assert.Len(t, Int64Bytes(-1), 8)
}
