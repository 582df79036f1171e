package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSampler_InitialLoadWithinUnitRange(t *testing.T) {
	l := newLoadSampler(10 * time.Millisecond)
	assert.GreaterOrEqual(t, l.load(), 0.0)
	assert.LessOrEqual(t, l.load(), 1.0)
}

func TestLoadSampler_HighServiceTimeRaisesLoad(t *testing.T) {
	l := newLoadSampler(time.Millisecond)
	before := l.load()
	for i := 0; i < 20; i++ {
		l.recordService(10 * time.Millisecond)
	}
	assert.Greater(t, l.load(), before)
}

func TestLoadSampler_NeverExceedsOne(t *testing.T) {
	l := newLoadSampler(time.Microsecond)
	for i := 0; i < 50; i++ {
		l.recordService(time.Second)
	}
	assert.LessOrEqual(t, l.load(), 1.0)
}
