package context

import (
	stdcontext "context"
	"testing"

	"github.com/vmware/vmaccel/internal/backend"
	"github.com/vmware/vmaccel/internal/surface"
)

func TestUploadDispatchDownloadRoundTrip(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	s := surface.New(1, 128, 4)

	ctx.AllocSurface(s, 128)
	queueID := ctx.AllocQueue(0)

	data := []byte("payload")
	if status, err := ctx.Upload(s, data, 0); status != StatusSuccess || err != nil {
		t.Fatalf("Upload() = %v, %v, want StatusSuccess", status, err)
	}

	status, err := ctx.Dispatch(stdcontext.Background(), queueID, nil, []*surface.Surface{s}, []backend.Binding{{SurfaceID: 1, Length: int64(len(data))}})
	if status != StatusSuccess || err != nil {
		t.Fatalf("Dispatch() = %v, %v, want StatusSuccess", status, err)
	}

	out := make([]byte, len(data))
	if status, err := ctx.Download(s, out, 0); status != StatusSuccess || err != nil {
		t.Fatalf("Download() = %v, %v, want StatusSuccess", status, err)
	}
}

func TestDispatchWithoutUploadIsResourceUnavailable(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	s := surface.New(1, 128, 4)
	ctx.AllocSurface(s, 128)
	queueID := ctx.AllocQueue(0)

	// An out-of-band upload by another actor (simulated directly) bumps
	// s to generation 1, so this context's serverGen (still 0 from
	// AllocSurface) trails it.
	s.Upload([]byte("x"), 0)

	status, err := ctx.Dispatch(stdcontext.Background(), queueID, nil, []*surface.Surface{s}, nil)
	if status != StatusResourceUnavailable {
		t.Fatalf("Dispatch() status = %v, err=%v, want StatusResourceUnavailable", status, err)
	}
}

func TestTwoContextsRequireReUpload(t *testing.T) {
	dev := backend.NewNull()
	a := New(1, dev)
	b := New(2, dev)
	s := surface.New(1, 64, 4)

	a.AllocSurface(s, 64)
	b.AllocSurface(s, 64)
	bQueue := b.AllocQueue(0)

	if status, _ := a.Upload(s, []byte("data"), 0); status != StatusSuccess {
		t.Fatalf("ctx A Upload() status = %v", status)
	}

	// ctx B has not re-uploaded, so its view trails the new generation.
	status, _ := b.Dispatch(stdcontext.Background(), bQueue, nil, []*surface.Surface{s}, nil)
	if status != StatusResourceUnavailable {
		t.Fatalf("ctx B Dispatch() before re-upload = %v, want StatusResourceUnavailable", status)
	}

	if status, _ := b.Upload(s, []byte("data"), 0); status != StatusSuccess {
		t.Fatalf("ctx B Upload() status = %v", status)
	}
	status, _ = b.Dispatch(stdcontext.Background(), bQueue, nil, []*surface.Surface{s}, nil)
	if status != StatusSuccess {
		t.Fatalf("ctx B Dispatch() after re-upload = %v, want StatusSuccess", status)
	}
}

func TestAllocSurfaceIsIdempotent(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	s := surface.New(1, 32, 2)

	ctx.AllocSurface(s, 32)
	ctx.AllocSurface(s, 32)
	if len(ctx.surface) != 1 {
		t.Fatalf("surface map len = %d, want 1", len(ctx.surface))
	}
}

func TestDestroySurfaceIsIdempotent(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	s := surface.New(1, 32, 2)

	ctx.AllocSurface(s, 32)
	ctx.DestroySurface(s)
	ctx.DestroySurface(s)
	if len(ctx.surface) != 0 {
		t.Fatalf("surface map len = %d, want 0", len(ctx.surface))
	}
}

func TestGetOrBuildKernelCachesByLanguageAndName(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)

	calls := 0
	id1, err := ctx.GetOrBuildKernel("opencl-c", "double", func() error { calls++; return nil })
	if err != nil {
		t.Fatalf("GetOrBuildKernel() error: %v", err)
	}
	id2, err := ctx.GetOrBuildKernel("opencl-c", "double", func() error { calls++; return nil })
	if err != nil {
		t.Fatalf("GetOrBuildKernel() error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("kernel ids differ across calls: %d != %d", id1, id2)
	}
	if calls != 1 {
		t.Fatalf("build func called %d times, want 1", calls)
	}
}

func TestQueueOrdersCopyAfterFill(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	src := surface.New(1, 16, 2)
	dst := surface.New(2, 16, 2)
	ctx.AllocSurface(src, 16)
	ctx.AllocSurface(dst, 16)
	queueID := ctx.AllocQueue(0)

	if status, err := ctx.Upload(src, []byte("0123456789012345"), 0); status != StatusSuccess || err != nil {
		t.Fatalf("Upload() = %v, %v", status, err)
	}

	if status, err := ctx.Fill(queueID, src, []byte{0xAA}, 0, 16); status != StatusSuccess || err != nil {
		t.Fatalf("Fill() = %v, %v", status, err)
	}
	if status, err := ctx.Copy(queueID, src, 0, dst, 0, 16); status != StatusSuccess || err != nil {
		t.Fatalf("Copy() = %v, %v", status, err)
	}
	if err := ctx.FlushQueue(queueID); err != nil {
		t.Fatalf("FlushQueue() error: %v", err)
	}

	out := make([]byte, 16)
	if status, err := ctx.Download(dst, out, 0); status != StatusSuccess || err != nil {
		t.Fatalf("Download() = %v, %v", status, err)
	}
	for i, b := range out {
		if b != 0xAA {
			t.Fatalf("dst[%d] = %x, want 0xAA (Copy must observe Fill's result under queue ordering)", i, b)
		}
	}
}

func TestDestroyQueueFailsOnUnknownID(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	if err := ctx.DestroyQueue(99); err == nil {
		t.Fatal("DestroyQueue(99) on unknown queue should fail")
	}
}

func TestCloseEvictsAllResidentSurfaces(t *testing.T) {
	dev := backend.NewNull()
	ctx := New(1, dev)
	s1 := surface.New(1, 16, 2)
	s2 := surface.New(2, 16, 2)
	ctx.AllocSurface(s1, 16)
	ctx.AllocSurface(s2, 16)

	ctx.Close()
	if len(ctx.surface) != 0 {
		t.Fatalf("surface map len after Close() = %d, want 0", len(ctx.surface))
	}
}
