package ast

// Arena stores values in insertion order and addresses them by 1-based
// slot, so slot 0 never names a value.
type Arena[T any] struct {
	slots []T
}

func NewArena[T any](capHint uint) *Arena[T] {
	return &Arena[T]{slots: make([]T, 0, capHint)}
}

// Allocate appends v and returns its slot.
func (a *Arena[T]) Allocate(v T) uint32 {
	a.slots = append(a.slots, v)
	return uint32(len(a.slots))
}

// Get returns the value in slot, or nil for slot 0 and slots never
// allocated. The pointer stays valid until the next Allocate.
func (a *Arena[T]) Get(slot uint32) *T {
	if slot == 0 || int(slot) > len(a.slots) {
		return nil
	}
	return &a.slots[slot-1]
}

// Clone returns an arena with the same slots, each value passed through cp.
func (a *Arena[T]) Clone(cp func(T) T) *Arena[T] {
	out := make([]T, len(a.slots), cap(a.slots))
	for i := range a.slots {
		out[i] = cp(a.slots[i])
	}
	return &Arena[T]{slots: out}
}
