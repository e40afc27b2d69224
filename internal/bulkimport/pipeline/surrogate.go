package pipeline

import (
	"time"

	"go.uber.org/atomic"
	"k8s.io/utils/clock"
)

const (
	// Number of 100ns ticks between 0001-01-01 and the unix epoch.
	unixEpochTicks = 621355968000000000
	// Low order bits of each id left free for records assigned within the same millisecond.
	subMillisecondBits = 3
)

// SurrogateIdGenerator hands out strictly increasing surrogate ids. Ids start just above the tick count of the
// millisecond the generator was created in, shifted left by subMillisecondBits, and go up by one per record.
// Assigning more than 1<<subMillisecondBits ids per elapsed millisecond runs ahead into the range a generator
// created later would start from, so two runs started close together can collide.
type SurrogateIdGenerator struct {
	counter *atomic.Int64
}

func NewSurrogateIdGenerator(clock clock.PassiveClock) *SurrogateIdGenerator {
	return NewSurrogateIdGeneratorFrom(SurrogateIdBase(clock.Now()))
}

// NewSurrogateIdGeneratorFrom returns a generator whose first id is base + 1.
func NewSurrogateIdGeneratorFrom(base int64) *SurrogateIdGenerator {
	return &SurrogateIdGenerator{counter: atomic.NewInt64(base)}
}

// NextId is safe for concurrent use.
func (g *SurrogateIdGenerator) NextId() int64 {
	return g.counter.Inc()
}

// SurrogateIdBase returns the id base for t: the 100ns tick count of t truncated to the millisecond, shifted left
// by subMillisecondBits.
func SurrogateIdBase(t time.Time) int64 {
	t = t.UTC().Truncate(time.Millisecond)
	return (unixEpochTicks + t.UnixNano()/100) << subMillisecondBits
}
