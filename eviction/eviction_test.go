package eviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyServed(t *testing.T) {
	p := NewEvictionPolicy(LRU)
	p.OnPut("stats")
	p.OnPut("doctors:page=1")
	p.OnPut("medicines")

	p.OnGet("stats")

	assert.Equal(t, "doctors:page=1", p.Evict())
	assert.Equal(t, "medicines", p.Evict())
	assert.Equal(t, "stats", p.Evict())
	assert.Equal(t, "", p.Evict())
}

func TestLRUReplaceRefreshesPosition(t *testing.T) {
	p := NewEvictionPolicy(LRU)
	p.OnPut("a")
	p.OnPut("b")
	p.OnPut("a")

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "b", p.Evict())
}

func TestFIFOIgnoresReadsAndReplaces(t *testing.T) {
	p := NewEvictionPolicy(FIFO)
	p.OnPut("a")
	p.OnPut("b")
	p.OnGet("a")
	p.OnPut("a")

	assert.Equal(t, "a", p.Evict())
	assert.Equal(t, "b", p.Evict())
}

func TestRemoveForgetsKey(t *testing.T) {
	for _, typ := range []PolicyType{LRU, FIFO} {
		p := NewEvictionPolicy(typ)
		p.OnPut("a")
		p.OnPut("b")
		p.Remove("a")
		p.Remove("missing")

		assert.Equal(t, 1, p.Len(), typ)
		assert.Equal(t, "b", p.Evict(), typ)
	}
}

func TestParsePolicyType(t *testing.T) {
	typ, ok := ParsePolicyType("fifo")
	assert.True(t, ok)
	assert.Equal(t, FIFO, typ)

	typ, ok = ParsePolicyType("")
	assert.True(t, ok)
	assert.Equal(t, LRU, typ)

	_, ok = ParsePolicyType("lfu")
	assert.False(t, ok)
}
