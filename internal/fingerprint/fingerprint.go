package fingerprint

import (
	"encoding/hex"
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Size is the length of a fingerprint in hex characters.
const Size = 16

// Pool of hash functions to avoid allocation overhead
var hasherPool = sync.Pool{
	New: func() interface{} {
		return murmur3.New64()
	},
}

// Compute derives a short opaque guest identifier from the caller's network
// address and user agent. It is a best-effort grouping key, not an
// authentication mechanism: collisions are possible and harmless.
func Compute(ip, userAgent string) string {
	hasher := hasherPool.Get().(hash.Hash64)
	defer hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(ip))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(userAgent))

	var sum [8]byte
	return hex.EncodeToString(hasher.Sum(sum[:0]))
}
