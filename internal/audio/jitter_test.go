package audio

import "testing"

func TestJitterBufferUnderrunProducesSilence(t *testing.T) {
	j := NewJitterBuffer(3, 4)
	pcm := j.Pop()
	if len(pcm) != 4 {
		t.Fatalf("silence length = %d, want 4", len(pcm))
	}
	for _, s := range pcm {
		if s != 0 {
			t.Fatalf("expected silence, got %v", pcm)
		}
	}
}

func TestJitterBufferOverrunDropsOldest(t *testing.T) {
	j := NewJitterBuffer(2, 1)
	j.Push([]float32{1})
	j.Push([]float32{2})
	j.Push([]float32{3}) // should drop the packet containing 1

	first := j.Pop()
	if first[0] != 2 {
		t.Fatalf("expected oldest surviving packet to be 2, got %v", first)
	}
	second := j.Pop()
	if second[0] != 3 {
		t.Fatalf("expected next packet to be 3, got %v", second)
	}
}

func TestJitterBufferFIFOOrder(t *testing.T) {
	j := NewJitterBuffer(4, 1)
	j.Push([]float32{1})
	j.Push([]float32{2})

	if got := j.Pop()[0]; got != 1 {
		t.Fatalf("first pop = %v, want 1", got)
	}
	if got := j.Pop()[0]; got != 2 {
		t.Fatalf("second pop = %v, want 2", got)
	}
}

func TestJitterBufferDepthTracksQueueLength(t *testing.T) {
	j := NewJitterBuffer(4, 1)
	if j.Depth() != 0 {
		t.Fatalf("initial depth = %d, want 0", j.Depth())
	}
	j.Push([]float32{1})
	j.Push([]float32{2})
	if j.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", j.Depth())
	}
	j.Pop()
	if j.Depth() != 1 {
		t.Fatalf("depth after pop = %d, want 1", j.Depth())
	}
}
