package queue

import (
	"testing"

	"github.com/zsiec/reel/internal/media"
)

func frame(t float64) media.VideoFrame {
	return media.VideoFrame{Time: t, Width: 2, Height: 2, Plane: []byte{byte(t), 1, 2, 3}}
}

func TestNewRejectsZeroDepth(t *testing.T) {
	t.Parallel()
	if _, err := New(0); err == nil {
		t.Error("expected error for depth 0")
	}
}

func TestPopEmpty(t *testing.T) {
	t.Parallel()
	q, _ := New(4)
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue returned a frame")
	}
}

func TestDropOnFull(t *testing.T) {
	t.Parallel()

	q, _ := New(4)
	for i := range 3 {
		if !q.Push(frame(float64(i))) {
			t.Fatalf("Push %d rejected", i)
		}
	}
	if !q.Full() || q.Len() != 3 || q.Cap() != 3 {
		t.Fatalf("Full=%v Len=%d Cap=%d", q.Full(), q.Len(), q.Cap())
	}
	if q.Push(frame(99)) {
		t.Fatal("Push into full queue accepted")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}
	for i := range 3 {
		f, ok := q.Pop()
		if !ok || f.Time != float64(i) {
			t.Fatalf("Pop %d = %v,%v", i, f.Time, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("dropped frame was enqueued")
	}
}

func TestDepthOneAlwaysDrops(t *testing.T) {
	t.Parallel()
	q, _ := New(1)
	if q.Push(frame(0)) {
		t.Error("depth-1 queue accepted a frame")
	}
	if q.Cap() != 0 {
		t.Errorf("Cap = %d, want 0", q.Cap())
	}
}

func TestFIFOWithInterleaving(t *testing.T) {
	t.Parallel()

	q, _ := New(3)
	var (
		next float64
		want float64
	)
	ops := "pppoopoppopoo"
	for i, op := range ops {
		switch op {
		case 'p':
			if q.Push(frame(next)) {
				next++
			}
		case 'o':
			f, ok := q.Pop()
			if !ok {
				continue
			}
			if f.Time != want {
				t.Fatalf("op %d: popped %v, want %v", i, f.Time, want)
			}
			want++
		}
	}
}

func TestPushCopiesPlane(t *testing.T) {
	t.Parallel()

	q, _ := New(4)
	var slot media.FrameSlot
	plane := []byte{1, 2, 3, 4}
	h := slot.Publish(0.5, 2, 2, plane)
	q.Push(h)

	plane[0] = 9
	slot.Publish(1.0, 2, 2, plane)

	f, ok := q.Pop()
	if !ok {
		t.Fatal("Pop failed")
	}
	if f.Stale() || !f.Owned() {
		t.Error("queued frame should be owned and never stale")
	}
	if f.Plane[0] != 1 || f.Time != 0.5 {
		t.Errorf("queued frame changed: time %v plane %v", f.Time, f.Plane)
	}
}

func TestPopValidUntilNextPop(t *testing.T) {
	t.Parallel()

	q, _ := New(2)
	q.Push(frame(1))
	f, _ := q.Pop()
	q.Push(frame(2))
	if f.Plane[0] != 1 {
		t.Errorf("popped plane overwritten by Push: %v", f.Plane)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	q, _ := New(5)
	q.Push(frame(1))
	q.Push(frame(2))
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("Len after Reset = %d", q.Len())
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop after Reset returned a frame")
	}
	s := q.Stats()
	if s.Pushed != 2 || s.Capacity != 4 {
		t.Errorf("Stats = %+v", s)
	}
}
