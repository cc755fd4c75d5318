package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsFullSizeBuffer(t *testing.T) {
	buf := Get()
	assert.Len(t, buf, BufferSize)
	Put(buf)
}

func TestPutThenGetReuses(t *testing.T) {
	buf := Get()
	copy(buf, []byte("probe"))
	Put(buf)

	buf2 := Get()
	assert.Len(t, buf2, BufferSize)
}

func TestPutUndersizedIgnored(t *testing.T) {
	small := make([]byte, 10)
	assert.NotPanics(t, func() { Put(small) })
}

func BenchmarkGetPut(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get()
		Put(buf)
	}
}
