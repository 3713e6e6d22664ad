package fingerprint

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("203.0.113.7", "Mozilla/5.0")
	b := Compute("203.0.113.7", "Mozilla/5.0")

	require.Len(t, a, Size)
	assert.Equal(t, a, b)
	assert.Regexp(t, "^[0-9a-f]{16}$", a)
}

func TestCompute_DistinguishesInputs(t *testing.T) {
	base := Compute("203.0.113.7", "Mozilla/5.0")

	assert.NotEqual(t, base, Compute("203.0.113.8", "Mozilla/5.0"))
	assert.NotEqual(t, base, Compute("203.0.113.7", "curl/8.0"))
	assert.NotEqual(t, Compute("ab", "c"), Compute("a", "bc"))
}

func TestCompute_Concurrent(t *testing.T) {
	want := Compute("198.51.100.1", "agent")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Compute("198.51.100.1", "agent"))
		}()
	}
	wg.Wait()
}
