package discount

import "sync"

// State is a point-in-time view of the negotiation.
type State struct {
	Current  int `json:"current_discount"`
	Max      int `json:"max_discount"`
	Attempts int `json:"bargaining_attempts"`
}

// Negotiator escalates the discount by a fixed step on every request, never
// beyond the ceiling. The current discount never decreases.
type Negotiator struct {
	mu       sync.Mutex
	baseline int
	current  int
	max      int
	step     int
	attempts int
}

// NewNegotiator returns a negotiator starting at baseline. A baseline above
// max is clamped to max.
func NewNegotiator(baseline, max, step int) *Negotiator {
	if baseline > max {
		baseline = max
	}
	if step <= 0 {
		step = 2
	}
	return &Negotiator{baseline: baseline, current: baseline, max: max, step: step}
}

// Request records one bargaining attempt and returns the resulting discount
// percentage and cartTotal with that discount applied.
func (n *Negotiator) Request(cartTotal float64) (int, float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.attempts > 0 && n.current < n.max {
		n.current += n.step
		if n.current > n.max {
			n.current = n.max
		}
	}
	return n.current, Apply(cartTotal, n.current)
}

// Effective returns the discount to apply at checkout: the current discount
// once at least one attempt has been made, zero otherwise.
func (n *Negotiator) Effective() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attempts > 0 {
		return n.current
	}
	return 0
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return State{Current: n.current, Max: n.max, Attempts: n.attempts}
}

// Reset returns the negotiation to its baseline.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = n.baseline
	n.attempts = 0
}

// Apply reduces amount by percent.
func Apply(amount float64, percent int) float64 {
	return amount * (1 - float64(percent)/100)
}
