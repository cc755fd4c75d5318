package spoofguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagDeterministicForSameGuard(t *testing.T) {
	g := New()
	a := g.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	b := g.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	assert.Equal(t, a, b, "tag must be deterministic for identical inputs")
}

func TestTagDiffersOnQuestionChange(t *testing.T) {
	g := New()
	a := g.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	b := g.Tag(0x1234, "example.org", 1, 1, "198.41.0.4:53")
	assert.NotEqual(t, a, b)
}

func TestTagDiffersAcrossGuards(t *testing.T) {
	g1 := New()
	g2 := New()
	a := g1.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	b := g2.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	assert.NotEqual(t, a, b, "different secrets should produce different tags")
}

func TestTagDiffersOnDestChange(t *testing.T) {
	g := New()
	a := g.Tag(0x1234, "example.com", 1, 1, "198.41.0.4:53")
	b := g.Tag(0x1234, "example.com", 1, 1, "199.9.14.201:53")
	assert.NotEqual(t, a, b)
}
