package browserpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newBookkeepingPool builds a Pool with placeholder instances (no real
// Chrome process) to exercise claim/release/rotation bookkeeping without
// requiring a browser binary in the test environment.
func newBookkeepingPool(n, rotationInterval int) *Pool {
	p := &Pool{rotationInterval: rotationInterval}
	for i := 0; i < n; i++ {
		p.instances = append(p.instances, &instance{})
	}
	return p
}

func TestTryClaim_MarksInstanceInUse(t *testing.T) {
	p := newBookkeepingPool(2, 0)

	idx, inst, ok := p.tryClaim()
	require.True(t, ok)
	require.True(t, inst.inUse)

	_, other, ok := p.tryClaim()
	require.True(t, ok)
	require.NotEqual(t, idx, indexOf(p, other))
}

func TestTryClaim_ExhaustedPoolReturnsFalse(t *testing.T) {
	p := newBookkeepingPool(1, 0)

	_, _, ok := p.tryClaim()
	require.True(t, ok)

	_, _, ok = p.tryClaim()
	require.False(t, ok, "a fully checked-out pool must not hand out a second claim")
}

func TestRelease_FreesInstanceForReclaim(t *testing.T) {
	p := newBookkeepingPool(1, 0)

	idx, _, ok := p.tryClaim()
	require.True(t, ok)

	p.Release(idx)

	_, _, ok = p.tryClaim()
	require.True(t, ok, "releasing an instance must make it claimable again")
}

func TestRelease_DoesNotRotateBelowThreshold(t *testing.T) {
	p := newBookkeepingPool(1, 2)
	before := p.instances[0]

	idx, _, _ := p.tryClaim()
	p.Release(idx) // scanCount 1, below threshold

	require.Same(t, before, p.instances[0], "must not rotate before reaching the threshold")
	require.Equal(t, 1, p.instances[0].scanCount)
}

func indexOf(p *Pool, inst *instance) int {
	for i, v := range p.instances {
		if v == inst {
			return i
		}
	}
	return -1
}
