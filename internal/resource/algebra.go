// Package resource implements the C2 resource algebra family (Int,
// AllocRange, Desc) and the C3 generic two-level Allocator built on top
// of them. The algebra trait is expressed as a Go interface rather than
// C++ operator overloads/template specialization: each concrete type
// satisfies Algebra[T] by implementing IsEmpty/Reserve/FreeInto/Less,
// mirroring the free functions vmaccel_types_*.hpp defines per type
// (IsEmpty, Reserve, FreeObj, operator</operator<=).
package resource

// Object pairs a resource value with the registered parent it was
// carved from and the fence it is retired behind, mirroring
// VMAccelObject<T> in vmaccel_allocator.hpp.
type Object[T any] struct {
	ParentID int64
	FenceID  int64
	Val      T
}

const InvalidID int64 = -1

// Algebra is the trait every resource type (Int, AllocRange, Desc) must
// satisfy to be used with Allocator[T].
type Algebra[T any] interface {
	// IsEmpty reports whether v carries zero capacity.
	IsEmpty(v T) bool

	// Reserve attempts to carve req out of have. On success it returns
	// the reserved portion d and the remaining portion r; ok is false
	// if have cannot satisfy req (the "a < req" check in the original).
	Reserve(have, req T) (d, r T, ok bool)

	// Add returns have+delta (registering/unregistering capacity).
	Add(have, delta T) T

	// Sub returns have-delta.
	Sub(have, delta T) T

	// Less defines the best-fit search ordering used by the allocator's
	// free set (by size for Int/AllocRange, by capacity for Desc).
	Less(a, b T) bool

	// FreeInto inserts v, belonging to parentID, into pool, applying
	// this algebra's coalescing rule, and returns the updated pool.
	FreeInto(pool []Object[T], parentID int64, v T) []Object[T]
}

// freeIntoSingleton implements the Int/Desc-style coalescing rule: at
// most one free entry per parent, new capacity is summed into it.
func freeIntoSingleton[T any](pool []Object[T], parentID int64, v T, add func(a, b T) T) []Object[T] {
	for i := range pool {
		if pool[i].ParentID == parentID {
			pool[i].Val = add(pool[i].Val, v)
			return pool
		}
	}
	return append(pool, Object[T]{ParentID: parentID, FenceID: InvalidID, Val: v})
}
