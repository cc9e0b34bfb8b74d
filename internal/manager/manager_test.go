package manager

import (
	"testing"

	"github.com/vmware/vmaccel/internal/resource"
)

func TestPowerOnRunsSelfTestAndSucceeds(t *testing.T) {
	m, status := PowerOn(DefaultConfig())
	if status != StatusSuccess {
		t.Fatalf("PowerOn() status = %v, want StatusSuccess", status)
	}
	if m == nil {
		t.Fatal("PowerOn() returned nil manager on success")
	}
}

func TestRegisterAllocFreeUnregister(t *testing.T) {
	m, status := PowerOn(DefaultConfig())
	if status != StatusSuccess {
		t.Fatalf("PowerOn() status = %v", status)
	}

	desc := resource.Desc{Capacity: resource.WorkloadDesc{MegaFlops: 1000, MegaOps: 1000}}
	id, status := m.Register(desc)
	if status != StatusSuccess {
		t.Fatalf("Register() status = %v", status)
	}

	req := resource.Desc{Capacity: resource.WorkloadDesc{MegaFlops: 400, MegaOps: 400}}
	eid, taken, status := m.Alloc(id, req)
	if status != StatusSuccess {
		t.Fatalf("Alloc() status = %v", status)
	}
	if taken.Capacity.MegaFlops != 400 {
		t.Fatalf("Alloc() taken.MegaFlops = %d, want 400", taken.Capacity.MegaFlops)
	}

	if status := m.Free(eid, resource.InvalidID); status != StatusSuccess {
		t.Fatalf("Free() status = %v", status)
	}
	if status := m.Unregister(id); status != StatusSuccess {
		t.Fatalf("Unregister() status = %v", status)
	}
}

func TestUnregisterFailsWithOutstandingRefs(t *testing.T) {
	m, _ := PowerOn(DefaultConfig())
	desc := resource.Desc{Capacity: resource.WorkloadDesc{MegaFlops: 1000}}
	id, _ := m.Register(desc)

	req := resource.Desc{Capacity: resource.WorkloadDesc{MegaFlops: 100}}
	if _, _, status := m.Alloc(id, req); status != StatusSuccess {
		t.Fatalf("Alloc() status = %v", status)
	}

	if status := m.Unregister(id); status != StatusFail {
		t.Fatalf("Unregister() with outstanding ref = %v, want StatusFail", status)
	}
}

func TestByteRangeScenario(t *testing.T) {
	// Literal scenario 2 from spec.md §8.
	m, _ := PowerOn(DefaultConfig())

	parent, status := m.RegisterByteRange(65535)
	if status != StatusSuccess {
		t.Fatalf("RegisterByteRange() status = %v", status)
	}

	e1, taken1, status := m.AllocByteRange(parent, 32768)
	if status != StatusSuccess || taken1.Begin != 0 || taken1.End != 32767 {
		t.Fatalf("AllocByteRange(32768) = (%v, %+v), want [0,32767]", status, taken1)
	}

	_, taken2, status := m.AllocByteRange(parent, 16384)
	if status != StatusSuccess || taken2.Begin != 32768 || taken2.End != 49151 {
		t.Fatalf("AllocByteRange(16384) = (%v, %+v), want [32768,49151]", status, taken2)
	}

	if status := m.FreeByteRange(e1, resource.InvalidID); status != StatusSuccess {
		t.Fatalf("FreeByteRange() status = %v", status)
	}

	_, taken3, status := m.AllocByteRange(parent, 16384)
	if status != StatusSuccess || taken3.Begin != 0 || taken3.End != 16383 {
		t.Fatalf("AllocByteRange(16384) after free = (%v, %+v), want [0,16383]", status, taken3)
	}
}

func TestPowerOffClearsAllocators(t *testing.T) {
	m, _ := PowerOn(DefaultConfig())
	if status := m.PowerOff(); status != StatusSuccess {
		t.Fatalf("PowerOff() status = %v", status)
	}
}
