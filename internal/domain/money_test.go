package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicksFromFloat(t *testing.T) {
	assert.Equal(t, Ticks(470_000), TicksFromFloat(0.47))
	assert.Equal(t, Dollar, TicksFromFloat(1.0))
	assert.Equal(t, Ticks(10_000), TicksFromFloat(0.01))
	assert.Equal(t, Ticks(0), TicksFromFloat(0))
}

func TestTicks_SumComparisonIsExact(t *testing.T) {
	// 0.47 + 0.53 == 1.00 exactly in ticks; the float sum is not reliable.
	sum := TicksFromFloat(0.47) + TicksFromFloat(0.53)
	assert.Equal(t, Dollar, sum)
	assert.False(t, sum < Dollar)

	sum = TicksFromFloat(0.47) + TicksFromFloat(0.529999)
	assert.True(t, sum < Dollar)
}

func TestParseTicks(t *testing.T) {
	got, err := ParseTicks("0.47")
	require.NoError(t, err)
	assert.Equal(t, Ticks(470_000), got)

	got, err = ParseTicks("1")
	require.NoError(t, err)
	assert.Equal(t, Dollar, got)

	_, err = ParseTicks("not-a-price")
	assert.Error(t, err)
}

func TestTicks_String(t *testing.T) {
	assert.Equal(t, "0.4700", Ticks(470_000).String())
	assert.Equal(t, "1.0000", Dollar.String())
	assert.Equal(t, "-0.1300", Ticks(-130_000).String())
}
