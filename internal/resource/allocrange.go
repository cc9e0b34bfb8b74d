package resource

// AllocRange is an inclusive byte range [Begin, End], used by the extent allocator for surface/buffer backing
// storage. Best-fit search orders candidates by Size; free-set
// coalescing merges by positional adjacency instead.
type AllocRange struct {
	Size        uint64
	Begin, End  uint64
}

// AllocRangeAlgebra implements Algebra[AllocRange].
type AllocRangeAlgebra struct{}

func (AllocRangeAlgebra) IsEmpty(v AllocRange) bool { return v.Size == 0 }

// Reserve carves req.Size bytes off the low end of have, matching
// vmaccel_types_allocrange.hpp's Reserve: the reservation always takes
// the beginning of the range, leaving the remainder above it.
func (AllocRangeAlgebra) Reserve(have, req AllocRange) (d, r AllocRange, ok bool) {
	if have.Size < req.Size {
		return AllocRange{}, AllocRange{}, false
	}
	d = AllocRange{
		Size:  req.Size,
		Begin: have.Begin,
		End:   have.Begin + req.Size - 1,
	}
	r = AllocRange{
		Size:  have.Size - req.Size,
		Begin: d.End + 1,
		End:   have.End,
	}
	return d, r, true
}

func (AllocRangeAlgebra) Add(a, b AllocRange) AllocRange {
	a.Size += b.Size
	return a
}

func (AllocRangeAlgebra) Sub(a, b AllocRange) AllocRange {
	a.Size -= b.Size
	return a
}

// Less orders by Size for best-fit search, per the original's
// cmpRange==false branch of operator<.
func (AllocRangeAlgebra) Less(a, b AllocRange) bool { return a.Size < b.Size }

// FreeInto merges v into its adjacent same-parent free range(s) when any
// exist, otherwise appends v as a new free entry.
//
// The original C++ (vmaccel_types_allocrange.hpp FreeObj) resolves
// adjacency by re-querying the size-ordered multiset with a
// range-comparison flag flipped on, which silently falls through to
// comparing by Size whenever cmpRange is false on either side of a
// std::multiset rebalance — an ordering bug that can miss a real
// adjacency or merge the wrong neighbor. This implementation instead
// scans same-parent entries directly for positional adjacency, with no
// dependence on the search-ordering key. When v is adjacent to both a
// lower neighbor (neighbor.End+1 == v.Begin) and an upper neighbor
// (neighbor.Begin == v.End+1), both merge into v in the same call,
// collapsing all three into one entry, so a freed fragment that
// bridges two free neighbors never leaves the free set fragmented.
func (a AllocRangeAlgebra) FreeInto(pool []Object[AllocRange], parentID int64, v AllocRange) []Object[AllocRange] {
	lower, upper := -1, -1
	for i := range pool {
		if pool[i].ParentID != parentID {
			continue
		}
		if pool[i].Val.End+1 == v.Begin {
			lower = i
		}
		if pool[i].Val.Begin == v.End+1 {
			upper = i
		}
	}

	switch {
	case lower >= 0 && upper >= 0:
		merged := pool[lower].Val
		merged.End = pool[upper].Val.End
		merged.Size = pool[lower].Val.Size + v.Size + pool[upper].Val.Size
		pool[lower].Val = merged
		return append(pool[:upper], pool[upper+1:]...)
	case lower >= 0:
		merged := pool[lower].Val
		merged.End = v.End
		merged.Size += v.Size
		pool[lower].Val = merged
		return pool
	case upper >= 0:
		merged := pool[upper].Val
		merged.Begin = v.Begin
		merged.Size += v.Size
		pool[upper].Val = merged
		return pool
	default:
		return append(pool, Object[AllocRange]{ParentID: parentID, FenceID: InvalidID, Val: v})
	}
}

var _ Algebra[AllocRange] = AllocRangeAlgebra{}
