package delay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tftpcore/tftpd/internal/delay"
)

func TestConstant(t *testing.T) {
	g := delay.Constant(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, g.Next())
	assert.Equal(t, 50*time.Millisecond, g.Next())
}

func TestUniformRandom_Bounds(t *testing.T) {
	g := delay.UniformRandom(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := g.Next()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestUniformRandom_DegenerateRange(t *testing.T) {
	g := delay.UniformRandom(5*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, g.Next())

	g = delay.UniformRandom(5*time.Millisecond, time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, g.Next())
}

func TestNone(t *testing.T) {
	assert.Equal(t, time.Duration(0), delay.None.Next())
}
