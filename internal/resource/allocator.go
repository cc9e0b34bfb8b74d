package resource

import (
	"sort"
	"sync"

	"github.com/vmware/vmaccel/internal/identifier"
	"github.com/vmware/vmaccel/internal/logging"
)

// FenceWaiter blocks until fenceID has retired, returning false if the
// wait could not complete (e.g. the fence was never submitted). The
// deferred-free path calls this before a freed object is folded back
// into the free set, matching vmaccel_manager_wait_for_fence.
type FenceWaiter func(fenceID int64) bool

// Allocator is the C3 two-level allocator: a registered set of parent
// objects ("a" in the original's number-theory notation, a = dq + r),
// and an externally-IDed set of reservations carved out of them ("d").
// It is the direct generic counterpart of VMAccelAllocator<T, C>.
type Allocator[T any] struct {
	mu sync.Mutex

	algebra Algebra[T]
	wait    FenceWaiter
	deferFree bool

	registered []T
	capacity   []T
	load       []T
	refCount   []int

	free  []Object[T]
	freed []Object[T]

	allocated []Object[T]

	registeredIDs *identifier.DB
	externalIDs   *identifier.DB
}

// New constructs an Allocator with capacity for `num` registered
// parents and `num` concurrent external reservations. deferFree
// mirrors the original's DEFER_FREE build flag: when false, Free
// coalesces synchronously by draining the freed queue against wait.
func New[T any](algebra Algebra[T], num int, wait FenceWaiter, deferFree bool) *Allocator[T] {
	return &Allocator[T]{
		algebra:       algebra,
		wait:          wait,
		deferFree:     deferFree,
		registered:    make([]T, num),
		capacity:      make([]T, num),
		load:          make([]T, num),
		refCount:      make([]int, num),
		allocated:     make([]Object[T], num),
		registeredIDs: identifier.New(num),
		externalIDs:   identifier.New(num),
	}
}

// insertFree inserts obj into the free set, kept sorted ascending by
// the algebra's best-fit ordering key.
func (a *Allocator[T]) insertFree(obj Object[T]) {
	i := sort.Search(len(a.free), func(i int) bool { return !a.algebra.Less(a.free[i].Val, obj.Val) })
	a.free = append(a.free, Object[T]{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = obj
}

// lowerBound returns the index of the first free entry whose value is
// not less than req under the algebra's ordering (std::lower_bound),
// or len(a.free) if none qualifies.
func (a *Allocator[T]) lowerBound(req T) int {
	return sort.Search(len(a.free), func(i int) bool { return !a.algebra.Less(a.free[i].Val, req) })
}

func (a *Allocator[T]) removeFreeAt(i int) Object[T] {
	obj := a.free[i]
	a.free = append(a.free[:i], a.free[i+1:]...)
	return obj
}

// coalesceFreed drains the freed queue, waiting on each entry's fence
// before folding it back into the free set, matching CoalesceFreed.
func (a *Allocator[T]) coalesceFreed() {
	for len(a.freed) > 0 {
		obj := a.freed[0]
		if a.wait != nil && !a.wait(obj.FenceID) {
			logging.Warn("allocator: unable to wait for fence", "fence", obj.FenceID)
			return
		}
		a.freed = a.freed[1:]
		merged := a.algebra.FreeInto(a.free, obj.ParentID, obj.Val)
		a.free = sortFreeSet(a.algebra, merged)
	}
}

// findFreed drains the freed queue looking for an entry from the same
// parent that can directly satisfy req, folding every entry it skips
// over back into the free set. Mirrors FindFreed.
func (a *Allocator[T]) findFreed(parentID int64, req T) (Object[T], bool) {
	for len(a.freed) > 0 {
		obj := a.freed[0]
		if a.wait != nil && !a.wait(obj.FenceID) {
			logging.Warn("allocator: unable to wait for fence", "fence", obj.FenceID)
			return Object[T]{}, false
		}
		a.freed = a.freed[1:]

		if obj.ParentID != parentID {
			a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, obj.ParentID, obj.Val))
			continue
		}

		if d, r, ok := a.algebra.Reserve(obj.Val, req); ok {
			if !a.algebra.IsEmpty(r) {
				a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, parentID, r))
			}
			return Object[T]{ParentID: parentID, FenceID: InvalidID, Val: d}, true
		}
		// Didn't fit as-is: return it to the free set, retry the
		// lower_bound search for a same-parent entry against the free
		// set, and if that also fails keep draining the queue.
		a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, obj.ParentID, obj.Val))
		it := a.lowerBound(req)
		for it < len(a.free) && a.free[it].ParentID != parentID {
			it++
		}
		if it < len(a.free) {
			cand := a.removeFreeAt(it)
			if d, r, ok := a.algebra.Reserve(cand.Val, req); ok {
				if !a.algebra.IsEmpty(r) {
					a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, parentID, r))
				}
				return Object[T]{ParentID: parentID, FenceID: InvalidID, Val: d}, true
			}
			a.insertFree(cand)
		}
	}
	return Object[T]{}, false
}

func sortFreeSet[T any](algebra Algebra[T], pool []Object[T]) []Object[T] {
	sort.SliceStable(pool, func(i, j int) bool { return algebra.Less(pool[i].Val, pool[j].Val) })
	return pool
}

// Register adds a new parent object to the registry with desc as its
// total registered capacity, returning its registered ID.
func (a *Allocator[T]) Register(desc T) (id int64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rid, got := a.registeredIDs.AllocId()
	if !got {
		return 0, false
	}
	a.capacity[rid] = a.algebra.Add(a.capacity[rid], desc)
	a.registered[rid] = desc
	a.refCount[rid] = 0
	a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, int64(rid), desc))
	return int64(rid), true
}

// Unregister removes a registered parent. It fails if the parent still
// has outstanding external reservations.
func (a *Allocator[T]) Unregister(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.refCount[id] != 0 {
		return false
	}
	a.coalesceFreed()
	if a.refCount[id] != 0 {
		return false
	}

	a.registeredIDs.ReleaseId(int(id))

	kept := a.free[:0]
	for _, e := range a.free {
		if e.ParentID != id {
			kept = append(kept, e)
		}
	}
	a.free = kept
	return true
}

// Alloc reserves req out of parentID's registered capacity, returning
// the external ID identifying the reservation and the reserved value.
func (a *Allocator[T]) Alloc(parentID int64, req T) (externalID int64, out T, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	eid, got := a.externalIDs.AllocId()
	if !got {
		return 0, out, false
	}

	var obj Object[T]
	found := false

	for it := a.lowerBound(req); it < len(a.free); it++ {
		cand := a.free[it]
		if cand.ParentID != parentID {
			continue
		}
		if d, r, rok := a.algebra.Reserve(cand.Val, req); rok {
			a.removeFreeAt(it)
			obj = Object[T]{ParentID: cand.ParentID, FenceID: InvalidID, Val: d}
			if !a.algebra.IsEmpty(r) {
				a.free = sortFreeSet(a.algebra, a.algebra.FreeInto(a.free, cand.ParentID, r))
			}
			found = true
		}
		break
	}
	if !found {
		if o, fok := a.findFreed(parentID, req); fok {
			obj = o
			found = true
		}
	}

	if !found {
		a.externalIDs.ReleaseId(eid)
		return 0, out, false
	}

	registeredID := obj.ParentID
	a.allocated[eid] = obj
	out = obj.Val
	a.capacity[registeredID] = a.algebra.Sub(a.capacity[registeredID], out)
	a.load[registeredID] = a.algebra.Add(a.load[registeredID], out)
	a.refCount[registeredID]++

	return int64(eid), out, true
}

// Free releases a previously allocated external reservation. The
// released object is queued behind its fence and, unless deferFree is
// set, coalesced back into the free set synchronously.
func (a *Allocator[T]) Free(id int64, fenceID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.externalIDs.ActiveId(int(id)) {
		panic("allocator: Free called on inactive external id")
	}

	obj := a.allocated[id]
	obj.FenceID = fenceID
	registeredID := obj.ParentID

	a.freed = append(a.freed, obj)
	if !a.deferFree {
		a.coalesceFreed()
	}

	a.capacity[registeredID] = a.algebra.Add(a.capacity[registeredID], obj.Val)
	a.load[registeredID] = a.algebra.Sub(a.load[registeredID], obj.Val)
	a.refCount[registeredID]--

	a.allocated[id] = Object[T]{ParentID: InvalidID, FenceID: InvalidID}
	a.externalIDs.ReleaseId(int(id))
	return true
}

// Allocated returns the value currently reserved under externalID,
// without releasing it. Used by callers (metrics reporting) that need
// to know what is about to be freed before calling Free.
func (a *Allocator[T]) Allocated(externalID int64) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated[externalID].Val
}

// Load returns the registered parent's current outstanding allocation.
func (a *Allocator[T]) Load(registeredID int64) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load[registeredID]
}

// Capacity returns the registered parent's current free capacity.
func (a *Allocator[T]) Capacity(registeredID int64) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity[registeredID]
}
