// Package digest provides BLAKE3 keyed hashing with domain separation.
//
// Every digest vellum computes (asset version tokens, payload identifiers)
// uses a distinct 32-byte domain key, so identical input bytes can never
// produce colliding values across contexts. Keys are the ASCII encoding of
// the domain name zero-padded to 32 bytes, which keeps them readable in hex
// dumps; BLAKE3 keyed mode treats the key as opaque, so readability costs
// nothing.
package digest

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Key is a 32-byte BLAKE3 domain key.
type Key [32]byte

// NewKey builds a domain key from an ASCII domain name. Changing a domain
// name invalidates every digest in that domain. Panics if the name exceeds
// 32 bytes; domain names are package-level constants, so this is a
// programming error caught at init.
func NewKey(domain string) Key {
	if len(domain) > 32 {
		panic("digest: domain name exceeds 32 bytes: " + domain)
	}
	var key Key
	copy(key[:], domain)
	return key
}

// Sum computes the keyed BLAKE3 digest of the concatenation of the given
// byte slices.
func Sum(key Key, data ...[]byte) [32]byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on wrong key length, which Key rules out.
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for _, d := range data {
		hasher.Write(d)
	}
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// HexN returns the first n hex characters of the keyed digest of data.
// n must be at most 64.
func HexN(key Key, n int, data ...[]byte) string {
	sum := Sum(key, data...)
	return hex.EncodeToString(sum[:])[:n]
}

// Int64Bytes encodes v big-endian for inclusion in digest input.
func Int64Bytes(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}
