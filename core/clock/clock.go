// Package clock abstracts the block-height source the governance engines
// compare deadlines against. daogovd wires wall-clock Unix seconds in as the
// height; tests substitute a fixed or steppable source.
package clock

// Source returns the current block height as observed by the calling
// transaction. Implementations must be side-effect free: the engines call it
// multiple times per operation and require a consistent value within a
// single state transition (spec §5: "Range queries observe a consistent
// snapshot of storage as of the invocation block").
type Source interface {
	BlockHeight() uint64
}

// Func adapts a plain function to Source.
type Func func() uint64

// BlockHeight implements Source.
func (f Func) BlockHeight() uint64 { return f() }

// Fixed returns a Source that always reports height.
func Fixed(height uint64) Source {
	return Func(func() uint64 { return height })
}

// Mutable is a test double whose height can be advanced between calls.
type Mutable struct {
	height uint64
}

// NewMutable constructs a Mutable source starting at height.
func NewMutable(height uint64) *Mutable {
	return &Mutable{height: height}
}

// BlockHeight implements Source.
func (m *Mutable) BlockHeight() uint64 {
	if m == nil {
		return 0
	}
	return m.height
}

// Advance moves the height forward by delta blocks.
func (m *Mutable) Advance(delta uint64) {
	if m == nil {
		return
	}
	m.height += delta
}

// Set pins the height to an exact value, e.g. to reproduce a regression at a
// specific block.
func (m *Mutable) Set(height uint64) {
	if m == nil {
		return
	}
	m.height = height
}
