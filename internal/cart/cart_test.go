package cart

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/domain"
)

func TestAddSameDescriptionMerges(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100})
	line := c.Add(domain.CartItem{ID: "1", Description: "Pink T-Shirt", Price: 100})

	assert.Equal(t, 2, line.Quantity)
	items := c.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100, Quantity: 2}, items[0])
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100})
	before := c.Snapshot()

	assert.Equal(t, 0, c.Remove("blue jeans"))
	assert.Equal(t, before, c.Snapshot())
}

func TestRemoveMatchesCaseInsensitively(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100})
	c.Add(domain.CartItem{ID: "2", Description: "blue jeans", Price: 50})

	assert.Equal(t, 1, c.Remove("PINK T-SHIRT"))
	assert.Equal(t, []string{"2"}, c.IDs())
}

func TestEditOverwritesOrInserts(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100, Quantity: 3})
	line := c.Edit(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100, Quantity: 1})
	assert.Equal(t, 1, line.Quantity)

	c.Edit(domain.CartItem{ID: "2", Description: "hat", Price: 20, Quantity: 4})
	assert.Equal(t, 2, c.Len())
	assert.InDelta(t, 100+80, c.Total(), 1e-9)
}

func TestClear(t *testing.T) {
	c := New()
	c.Add(domain.CartItem{ID: "1", Description: "x", Price: 1})
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Snapshot())
	assert.Zero(t, c.Total())
}

func TestConcurrentAddsKeepSingleLine(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(domain.CartItem{ID: "1", Description: "pink t-shirt", Price: 100})
		}()
	}
	wg.Wait()
	items := c.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, 50, items[0].Quantity)
}
