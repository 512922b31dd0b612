package ctxengine

import "fmt"

// Shares are the priority-share fractions of the total budget. They are
// normalized, so only their ratio matters.
type Shares struct {
	Persona      float64 `yaml:"persona"`
	Conversation float64 `yaml:"conversation"`
	Feedback     float64 `yaml:"feedback"`
}

// DefaultShares favors the two context sources over refinement signal.
var DefaultShares = Shares{Persona: 0.4, Conversation: 0.4, Feedback: 0.2}

func (s Shares) sum() float64 { return s.Persona + s.Conversation + s.Feedback }

// Validate rejects negative shares and an all-zero split.
func (s Shares) Validate() error {
	if s.Persona < 0 || s.Conversation < 0 || s.Feedback < 0 {
		return fmt.Errorf("ctxengine: shares must be non-negative, got %+v", s)
	}
	if s.sum() == 0 {
		return fmt.Errorf("ctxengine: shares must not all be zero")
	}
	return nil
}

// Demand is the natural size, in tokens, of each context source.
type Demand struct {
	Persona      int
	Conversation int
	Feedback     int
}

// Allocation is the token budget granted to each context source.
type Allocation struct {
	Persona      int
	Conversation int
	Feedback     int
}

// Total returns the sum of the three budgets.
func (a Allocation) Total() int {
	return a.Persona + a.Conversation + a.Feedback
}

// Absorb moves up to overflow tokens to the conversation budget, taking them
// from feedback first and persona second. It returns the adjusted allocation
// and the part of overflow that could not be absorbed.
func (a Allocation) Absorb(overflow int) (Allocation, int) {
	if overflow <= 0 {
		return a, 0
	}
	take := min(overflow, a.Feedback)
	a.Feedback -= take
	a.Conversation += take
	overflow -= take

	take = min(overflow, a.Persona)
	a.Persona -= take
	a.Conversation += take
	overflow -= take
	return a, overflow
}

// Allocator splits a total budget across persona, conversation and feedback
// in that priority order.
type Allocator struct {
	shares Shares
}

// NewAllocator returns an Allocator using shares, or DefaultShares when
// shares are invalid.
func NewAllocator(shares Shares) *Allocator {
	if shares.Validate() != nil {
		shares = DefaultShares
	}
	return &Allocator{shares: shares}
}

// Allocate grants each source its priority share capped at its demand. A
// source's unused share passes to the next-lower-priority source; whatever
// the lowest source cannot use is offered back in priority order. The result
// never exceeds total and equals min(total, sum of demands).
func (a *Allocator) Allocate(total int, d Demand) Allocation {
	if total <= 0 {
		return Allocation{}
	}
	demand := [3]int{max(d.Persona, 0), max(d.Conversation, 0), max(d.Feedback, 0)}

	// Floor the higher-priority shares; the rounding remainder goes to the
	// lowest priority so the shares sum to total exactly.
	sum := a.shares.sum()
	var share [3]int
	share[0] = int(float64(total) * a.shares.Persona / sum)
	share[1] = int(float64(total) * a.shares.Conversation / sum)
	share[2] = total - share[0] - share[1]

	var granted [3]int
	carry := 0
	for i := range granted {
		avail := share[i] + carry
		granted[i] = min(avail, demand[i])
		carry = avail - granted[i]
	}
	for i := range granted {
		if carry == 0 {
			break
		}
		extra := min(carry, demand[i]-granted[i])
		granted[i] += extra
		carry -= extra
	}

	return Allocation{Persona: granted[0], Conversation: granted[1], Feedback: granted[2]}
}
