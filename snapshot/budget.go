package snapshot

// Budget tracks consecutive rollback attempts for one container and decides
// when recovery must escalate to recreation.
//
// Each container has its own Budget instance. The counter survives
// successful updates on purpose: only recreation (a fresh start) resets it,
// so a container that keeps flapping between update failure and rollback
// eventually gets rebuilt instead of thrashing forever.
type Budget struct {
	max     int
	current int
}

// NewBudget creates a budget allowing max rollbacks before escalation.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Exhausted reports whether the next rollback must escalate to recreation.
func (b *Budget) Exhausted() bool {
	return b.current >= b.max
}

// Note records one rollback attempt.
func (b *Budget) Note() {
	b.current++
}

// Reset clears the counter. Called by recreation.
func (b *Budget) Reset() {
	b.current = 0
}

// Current returns the number of rollbacks attempted so far.
func (b *Budget) Current() int {
	return b.current
}

// Max returns the configured ceiling.
func (b *Budget) Max() int {
	return b.max
}
