package cart

import (
	"strings"
	"sync"

	"shopassist/internal/domain"
)

// Cart is the session shopping cart. Lines are merged by case-insensitive
// description, so at most one line exists per description.
type Cart struct {
	mu    sync.Mutex
	items []domain.CartItem
}

func New() *Cart { return &Cart{} }

// Add merges item into the cart. A non-positive quantity counts as one.
// It returns the resulting line.
func (c *Cart) Add(item domain.CartItem) domain.CartItem {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(item.Description); i >= 0 {
		c.items[i].Quantity += item.Quantity
		return c.items[i]
	}
	c.items = append(c.items, item)
	return item
}

// Remove deletes every line whose description matches and reports how many
// lines were removed. Removing an unknown description is a no-op.
func (c *Cart) Remove(description string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	removed := 0
	for _, it := range c.items {
		if strings.EqualFold(it.Description, description) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	c.items = kept
	return removed
}

// Edit overwrites the quantity of the matching line, or inserts the item when
// no line matches.
func (c *Cart) Edit(item domain.CartItem) domain.CartItem {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(item.Description); i >= 0 {
		c.items[i].Quantity = item.Quantity
		return c.items[i]
	}
	c.items = append(c.items, item)
	return item
}

// Snapshot returns a copy of the cart lines in insertion order.
func (c *Cart) Snapshot() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Total returns the sum of price × quantity over all lines.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0.0
	for _, it := range c.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// IDs returns the item identifiers in cart order.
func (c *Cart) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.items))
	for i, it := range c.items {
		ids[i] = it.ID
	}
	return ids
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func (c *Cart) indexOf(description string) int {
	for i := range c.items {
		if strings.EqualFold(c.items[i].Description, description) {
			return i
		}
	}
	return -1
}
