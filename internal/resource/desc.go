package resource

// WorkloadDesc is the 9-dimension capacity vector carried by a device
// descriptor: compute throughput, cache/memory size and bandwidth at
// each tier, and interconnect bandwidth. Arithmetic and the Reserve fit
// check are pointwise over every dimension; best-fit ordering
// (DescAlgebra.Less) compares the summed weight instead.
type WorkloadDesc struct {
	MegaFlops                  uint64
	MegaOps                    uint64
	LLCSizeKB                  uint64
	LLCBandwidthMBSec          uint64
	LocalMemSizeKB             uint64
	LocalMemBandwidthMBSec     uint64
	NonLocalMemSizeKB          uint64
	NonLocalMemBandwidthMBSec  uint64
	InterconnectBandwidthMBSec uint64
}

// LessEqual reports whether lhs is dominated by rhs in every dimension
// (lhs <= rhs pointwise). The original implementation's operator<=
// agrees with this definition, but its operator< instead returns true
// if *any* single dimension is smaller — an inconsistent total order
// that can rank two incomparable descriptors as both "less than" each
// other. Here DescAlgebra.Reserve uses this pointwise check to decide
// whether a request fits, while DescAlgebra.Less orders the free set by
// summed weight.
func (lhs WorkloadDesc) LessEqual(rhs WorkloadDesc) bool {
	return lhs.MegaFlops <= rhs.MegaFlops &&
		lhs.MegaOps <= rhs.MegaOps &&
		lhs.LLCSizeKB <= rhs.LLCSizeKB &&
		lhs.LLCBandwidthMBSec <= rhs.LLCBandwidthMBSec &&
		lhs.LocalMemSizeKB <= rhs.LocalMemSizeKB &&
		lhs.LocalMemBandwidthMBSec <= rhs.LocalMemBandwidthMBSec &&
		lhs.NonLocalMemSizeKB <= rhs.NonLocalMemSizeKB &&
		lhs.NonLocalMemBandwidthMBSec <= rhs.NonLocalMemBandwidthMBSec &&
		lhs.InterconnectBandwidthMBSec <= rhs.InterconnectBandwidthMBSec
}

func (lhs WorkloadDesc) add(rhs WorkloadDesc) WorkloadDesc {
	return WorkloadDesc{
		MegaFlops:                  lhs.MegaFlops + rhs.MegaFlops,
		MegaOps:                    lhs.MegaOps + rhs.MegaOps,
		LLCSizeKB:                  lhs.LLCSizeKB + rhs.LLCSizeKB,
		LLCBandwidthMBSec:          lhs.LLCBandwidthMBSec + rhs.LLCBandwidthMBSec,
		LocalMemSizeKB:             lhs.LocalMemSizeKB + rhs.LocalMemSizeKB,
		LocalMemBandwidthMBSec:     lhs.LocalMemBandwidthMBSec + rhs.LocalMemBandwidthMBSec,
		NonLocalMemSizeKB:          lhs.NonLocalMemSizeKB + rhs.NonLocalMemSizeKB,
		NonLocalMemBandwidthMBSec:  lhs.NonLocalMemBandwidthMBSec + rhs.NonLocalMemBandwidthMBSec,
		InterconnectBandwidthMBSec: lhs.InterconnectBandwidthMBSec + rhs.InterconnectBandwidthMBSec,
	}
}

func (lhs WorkloadDesc) sub(rhs WorkloadDesc) WorkloadDesc {
	return WorkloadDesc{
		MegaFlops:                  lhs.MegaFlops - rhs.MegaFlops,
		MegaOps:                    lhs.MegaOps - rhs.MegaOps,
		LLCSizeKB:                  lhs.LLCSizeKB - rhs.LLCSizeKB,
		LLCBandwidthMBSec:          lhs.LLCBandwidthMBSec - rhs.LLCBandwidthMBSec,
		LocalMemSizeKB:             lhs.LocalMemSizeKB - rhs.LocalMemSizeKB,
		LocalMemBandwidthMBSec:     lhs.LocalMemBandwidthMBSec - rhs.LocalMemBandwidthMBSec,
		NonLocalMemSizeKB:          lhs.NonLocalMemSizeKB - rhs.NonLocalMemSizeKB,
		NonLocalMemBandwidthMBSec:  lhs.NonLocalMemBandwidthMBSec - rhs.NonLocalMemBandwidthMBSec,
		InterconnectBandwidthMBSec: lhs.InterconnectBandwidthMBSec - rhs.InterconnectBandwidthMBSec,
	}
}

func (w WorkloadDesc) isZero() bool {
	return w.MegaFlops == 0 && w.MegaOps == 0 && w.LLCSizeKB == 0 &&
		w.LLCBandwidthMBSec == 0 && w.LocalMemSizeKB == 0 &&
		w.LocalMemBandwidthMBSec == 0 && w.NonLocalMemSizeKB == 0 &&
		w.NonLocalMemBandwidthMBSec == 0 && w.InterconnectBandwidthMBSec == 0
}

// DeviceType/Architecture mirror the original's enumerations closely
// enough for registry bookkeeping; the concrete values aren't
// meaningful outside logging and wire encoding.
type DeviceType uint32
type Architecture uint32

// Desc is a device capability descriptor: the unit of registration and
// sub-allocation for C5 Manager's accelerator-capacity pool.
type Desc struct {
	ParentID     int64
	Type         DeviceType
	Architecture Architecture
	Caps         uint32
	Capacity     WorkloadDesc
	MaxContexts  uint32
	MaxQueues    uint32
	MaxEvents    uint32
	MaxFences    uint32
	MaxSurfaces  uint32
	MaxMappings  uint32

	// FormatCaps/BackendDesc are opaque sidecar payloads (supported
	// surface formats, backend-specific descriptor bytes). They are
	// deep-copied along with the rest of Desc but never participate in
	// ordering or arithmetic.
	FormatCaps  []byte
	BackendDesc []byte
}

// Clone returns a deep copy of d, matching the original's DeepCopy
// (which duplicates the formatCaps/backendDesc byte buffers rather
// than aliasing them).
func (d Desc) Clone() Desc {
	out := d
	if d.FormatCaps != nil {
		out.FormatCaps = append([]byte(nil), d.FormatCaps...)
	}
	if d.BackendDesc != nil {
		out.BackendDesc = append([]byte(nil), d.BackendDesc...)
	}
	return out
}

// DescAlgebra implements Algebra[Desc].
type DescAlgebra struct{}

func (DescAlgebra) IsEmpty(v Desc) bool { return v.Capacity.isZero() }

func (DescAlgebra) Reserve(have, req Desc) (d, r Desc, ok bool) {
	if !req.Capacity.LessEqual(have.Capacity) {
		return Desc{}, Desc{}, false
	}
	d = have.Clone()
	r = have.Clone()
	d.Capacity = req.Capacity
	r.Capacity = have.Capacity.sub(req.Capacity)
	return d, r, true
}

func (DescAlgebra) Add(a, b Desc) Desc {
	a.Capacity = a.Capacity.add(b.Capacity)
	return a
}

func (DescAlgebra) Sub(a, b Desc) Desc {
	a.Capacity = a.Capacity.sub(b.Capacity)
	return a
}

// Less orders descriptors for best-fit search using the pointwise
// partial order collapsed to a preorder on total capacity weight (sum
// of all nine dimensions), which is enough to make sort.Search usable
// for "at least as big as req" scans while Reserve still enforces the
// real pointwise constraint before accepting a candidate.
func (DescAlgebra) Less(a, b Desc) bool {
	return weight(a.Capacity) < weight(b.Capacity)
}

func weight(w WorkloadDesc) uint64 {
	return w.MegaFlops + w.MegaOps + w.LLCSizeKB + w.LLCBandwidthMBSec +
		w.LocalMemSizeKB + w.LocalMemBandwidthMBSec + w.NonLocalMemSizeKB +
		w.NonLocalMemBandwidthMBSec + w.InterconnectBandwidthMBSec
}

// FreeInto keeps at most one free entry per parent, summing returned
// capacity into it, matching vmaccel_types_desc.hpp's FreeObj.
func (a DescAlgebra) FreeInto(pool []Object[Desc], parentID int64, v Desc) []Object[Desc] {
	return freeIntoSingleton(pool, parentID, v, a.Add)
}

var _ Algebra[Desc] = DescAlgebra{}
