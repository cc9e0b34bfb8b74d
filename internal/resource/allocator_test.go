package resource

import "testing"

func noWait(int64) bool { return true }

// TestManagerSelfTestScenario replays the scalar-allocator self-test
// vmaccel_manager_poweron runs at process start: register a parent with
// 65535 units, allocate 32768 twice (the second attempt fails, only
// 32767 remain), allocate 16384, free it, allocate the 32767 now free,
// free everything, and finally carve the parent into 2048-unit chunks
// until exhausted.
func TestManagerSelfTestScenario(t *testing.T) {
	a := New[Int](IntAlgebra{}, 32, noWait, false)

	parent, ok := a.Register(Int{X: 65535})
	if !ok {
		t.Fatal("Register failed")
	}

	id1, v1, ok := a.Alloc(parent, Int{X: 32768})
	if !ok || v1.X != 32768 {
		t.Fatalf("first Alloc(32768) = (%v, %v, %v)", id1, v1, ok)
	}

	if _, _, ok := a.Alloc(parent, Int{X: 32768}); ok {
		t.Fatal("second Alloc(32768) should fail: only 32767 left")
	}

	id2, v2, ok := a.Alloc(parent, Int{X: 16384})
	if !ok || v2.X != 16384 {
		t.Fatalf("Alloc(16384) = (%v, %v, %v)", id2, v2, ok)
	}

	if !a.Free(id2, InvalidID) {
		t.Fatal("Free(id2) failed")
	}

	id3, v3, ok := a.Alloc(parent, Int{X: 32767})
	if !ok || v3.X != 32767 {
		t.Fatalf("Alloc(32767) = (%v, %v, %v)", id3, v3, ok)
	}
	if !a.Free(id3, InvalidID) {
		t.Fatal("Free(id3) failed")
	}
	if !a.Free(id1, InvalidID) {
		t.Fatal("Free(id1) failed")
	}

	// Parent is now fully free again (65535 units). Carve it into
	// 2048-unit chunks: floor(65535/2048) = 31 succeed, the 32nd fails.
	count := 0
	for {
		if _, _, ok := a.Alloc(parent, Int{X: 2048}); !ok {
			break
		}
		count++
	}
	if count != 31 {
		t.Fatalf("carved %d chunks of 2048, want 31", count)
	}
}

func TestAllocFailsWhenExternalIDSpaceExhausted(t *testing.T) {
	a := New[Int](IntAlgebra{}, 2, noWait, false)
	parent, _ := a.Register(Int{X: 100})

	if _, _, ok := a.Alloc(parent, Int{X: 1}); !ok {
		t.Fatal("first Alloc failed")
	}
	if _, _, ok := a.Alloc(parent, Int{X: 1}); !ok {
		t.Fatal("second Alloc failed")
	}
	if _, _, ok := a.Alloc(parent, Int{X: 1}); ok {
		t.Fatal("third Alloc should fail: external id space (size 2) exhausted")
	}
}

func TestUnregisterFailsWithOutstandingRefs(t *testing.T) {
	a := New[Int](IntAlgebra{}, 4, noWait, false)
	parent, _ := a.Register(Int{X: 10})
	id, _, _ := a.Alloc(parent, Int{X: 5})

	if a.Unregister(parent) {
		t.Fatal("Unregister should fail while a reservation is outstanding")
	}
	a.Free(id, InvalidID)
	if !a.Unregister(parent) {
		t.Fatal("Unregister should succeed once refcount reaches zero")
	}
}

func TestAllocRangeBestFitAndCoalesce(t *testing.T) {
	a := New[AllocRange](AllocRangeAlgebra{}, 4, noWait, false)
	parent, _ := a.Register(AllocRange{Size: 100, Begin: 0, End: 99})

	id, v, ok := a.Alloc(parent, AllocRange{Size: 40})
	if !ok || v.Begin != 0 || v.End != 39 {
		t.Fatalf("Alloc(40) = %+v, %v", v, ok)
	}

	id2, v2, ok := a.Alloc(parent, AllocRange{Size: 20})
	if !ok || v2.Begin != 40 {
		t.Fatalf("Alloc(20) = %+v, %v", v2, ok)
	}

	a.Free(id, InvalidID)
	a.Free(id2, InvalidID)

	// After freeing both adjacent chunks, a 60-unit request spanning
	// [0,59] should be satisfiable from the coalesced free range.
	_, v3, ok := a.Alloc(parent, AllocRange{Size: 60})
	if !ok || v3.Begin != 0 || v3.End != 59 {
		t.Fatalf("Alloc(60) after coalesce = %+v, %v", v3, ok)
	}
}

// TestAllocRangeFreeBridgesBothNeighborsInOneCall reproduces a freed
// middle fragment that is adjacent to a lower *and* an upper free
// neighbor at once: the free set must collapse to a single maximal
// range in the same FreeInto call, not require a second pass.
func TestAllocRangeFreeBridgesBothNeighborsInOneCall(t *testing.T) {
	a := New[AllocRange](AllocRangeAlgebra{}, 4, noWait, false)
	parent, _ := a.Register(AllocRange{Size: 300, Begin: 0, End: 299})

	id1, v1, ok := a.Alloc(parent, AllocRange{Size: 100})
	if !ok || v1.Begin != 0 || v1.End != 99 {
		t.Fatalf("Alloc(100) #1 = %+v, %v", v1, ok)
	}
	id2, v2, ok := a.Alloc(parent, AllocRange{Size: 100})
	if !ok || v2.Begin != 100 || v2.End != 199 {
		t.Fatalf("Alloc(100) #2 = %+v, %v", v2, ok)
	}
	id3, v3, ok := a.Alloc(parent, AllocRange{Size: 100})
	if !ok || v3.Begin != 200 || v3.End != 299 {
		t.Fatalf("Alloc(100) #3 = %+v, %v", v3, ok)
	}

	// Free the two outer fragments first so they land as two
	// non-adjacent free entries, then free the middle fragment, which
	// is adjacent to both at once.
	if !a.Free(id1, InvalidID) {
		t.Fatal("Free(id1) failed")
	}
	if !a.Free(id3, InvalidID) {
		t.Fatal("Free(id3) failed")
	}
	if !a.Free(id2, InvalidID) {
		t.Fatal("Free(id2) failed")
	}

	if got := len(a.free); got != 1 {
		t.Fatalf("free set has %d entries after bridging free, want 1: %+v", got, a.free)
	}
	if got := a.free[0].Val; got.Begin != 0 || got.End != 299 || got.Size != 300 {
		t.Fatalf("merged free range = %+v, want {Size:300 Begin:0 End:299}", got)
	}

	_, v4, ok := a.Alloc(parent, AllocRange{Size: 300})
	if !ok || v4.Begin != 0 || v4.End != 299 {
		t.Fatalf("Alloc(300) after bridging free = %+v, %v", v4, ok)
	}
}

func TestDescReserveRejectsWhenAnyDimensionInsufficient(t *testing.T) {
	have := Desc{Capacity: WorkloadDesc{MegaFlops: 100, MegaOps: 50}}
	req := Desc{Capacity: WorkloadDesc{MegaFlops: 10, MegaOps: 60}}

	alg := DescAlgebra{}
	if _, _, ok := alg.Reserve(have, req); ok {
		t.Fatal("Reserve should fail: req.MegaOps exceeds have.MegaOps")
	}
}

func TestDescReservePointwise(t *testing.T) {
	have := Desc{Capacity: WorkloadDesc{MegaFlops: 100, MegaOps: 50, LocalMemSizeKB: 1024}}
	req := Desc{Capacity: WorkloadDesc{MegaFlops: 40, MegaOps: 10, LocalMemSizeKB: 256}}

	alg := DescAlgebra{}
	d, r, ok := alg.Reserve(have, req)
	if !ok {
		t.Fatal("Reserve should succeed: req dominated by have in every dimension")
	}
	if d.Capacity != req.Capacity {
		t.Fatalf("d.Capacity = %+v, want %+v", d.Capacity, req.Capacity)
	}
	want := WorkloadDesc{MegaFlops: 60, MegaOps: 40, LocalMemSizeKB: 768}
	if r.Capacity != want {
		t.Fatalf("r.Capacity = %+v, want %+v", r.Capacity, want)
	}
}
