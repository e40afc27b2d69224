package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestSurrogateIdBase(t *testing.T) {
	assert.Equal(t, int64(4970847744000000000), SurrogateIdBase(time.Unix(0, 0)))
	// Sub-millisecond precision is discarded.
	assert.Equal(
		t,
		int64(5046582528000080000),
		SurrogateIdBase(time.Date(2000, 1, 1, 0, 0, 0, 1_500_000, time.UTC)),
	)
	// Time zone doesn't matter.
	instant := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, SurrogateIdBase(instant), SurrogateIdBase(instant.In(time.FixedZone("X", 3600))))
}

func TestSurrogateIdGenerator_StrictlyIncreasing(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	ids := NewSurrogateIdGenerator(clocktesting.NewFakePassiveClock(now))

	base := SurrogateIdBase(now)
	previous := base
	for i := 0; i < 100; i++ {
		id := ids.NextId()
		assert.Equal(t, previous+1, id)
		previous = id
	}
}

func TestSurrogateIdGenerator_ConcurrentIdsAreUnique(t *testing.T) {
	ids := NewSurrogateIdGeneratorFrom(0)
	const goroutines, perGoroutine = 8, 1000

	results := make([][]int64, goroutines)
	wg := sync.WaitGroup{}
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results[i] = append(results[i], ids.NextId())
			}
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range results {
		for j := 1; j < len(r); j++ {
			require.Greater(t, r[j], r[j-1])
		}
		for _, id := range r {
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestSurrogateIdGenerator_RunsAtDifferentBasesDontCollide(t *testing.T) {
	clock := clocktesting.NewFakePassiveClock(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	first := NewSurrogateIdGenerator(clock)
	clock.SetTime(clock.Now().Add(time.Second))
	second := NewSurrogateIdGenerator(clock)

	const n = 1000
	firstIds := map[int64]bool{}
	for i := 0; i < n; i++ {
		firstIds[first.NextId()] = true
	}
	for i := 0; i < n; i++ {
		assert.False(t, firstIds[second.NextId()])
	}
}
