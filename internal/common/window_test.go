package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow_Average(t *testing.T) {
	t.Parallel()

	w := NewSlidingWindow(3)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, float64(0), w.Average())

	w.Add(10)
	assert.Equal(t, 1, w.Count())
	assert.Equal(t, float64(10), w.Average())

	w.Add(20)
	w.Add(30)
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, float64(20), w.Average())
}

func TestSlidingWindow_EvictsOldest(t *testing.T) {
	t.Parallel()

	w := NewSlidingWindow(3)
	w.Add(10)
	w.Add(20)
	w.Add(30)

	// Pushes out the 10
	w.Add(40)

	assert.Equal(t, 3, w.Count())
	assert.Equal(t, float64(30), w.Average())

	// Fill the window entirely with new samples
	w.Add(50)
	w.Add(60)
	assert.Equal(t, float64(50), w.Average())
}

func TestSlidingWindow_ZeroCapacity(t *testing.T) {
	t.Parallel()

	w := NewSlidingWindow(0)
	w.Add(7)
	assert.Equal(t, float64(7), w.Average())
}
