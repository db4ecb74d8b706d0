package pipeline

import (
	"errors"
	"testing"
	"time"

	"dsqdata/chunk"
)

func TestSlotSendRecv(t *testing.T) {
	s := NewSlot()
	c := chunk.New(chunk.DefaultLimits, true)
	go s.Send(Envelope{Chunk: c})

	select {
	case env := <-waitRecv(s):
		if env.Chunk != c {
			t.Fatalf("got a different chunk back")
		}
		if env.Err != nil {
			t.Fatalf("unexpected error: %v", env.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Send")
	}
}

func TestSlotCarriesPoisonedEnvelope(t *testing.T) {
	s := NewSlot()
	want := errors.New("boom")
	go s.Send(Envelope{Err: want})

	env := s.Recv()
	if env.Chunk != nil {
		t.Fatalf("poisoned envelope should carry a nil chunk")
	}
	if env.Err != want {
		t.Fatalf("got error %v, want %v", env.Err, want)
	}
}

func TestSlotRecvOKAfterClose(t *testing.T) {
	s := NewSlot()
	s.Send(Envelope{})
	s.Close()

	if _, ok := s.RecvOK(); !ok {
		t.Fatal("expected the buffered envelope before the close is observed")
	}
	if _, ok := s.RecvOK(); ok {
		t.Fatal("expected RecvOK to report false once the slot is drained and closed")
	}
}

func TestRecycleStackLIFO(t *testing.T) {
	s := NewRecycleStack()
	a := chunk.New(chunk.DefaultLimits, true)
	b := chunk.New(chunk.DefaultLimits, true)
	s.Push(a)
	s.Push(b)

	got, ok := s.Pop()
	if !ok || got != b {
		t.Fatalf("expected the most recently pushed chunk back first")
	}
	got, ok = s.Pop()
	if !ok || got != a {
		t.Fatalf("expected the first-pushed chunk back second")
	}
}

func TestRecycleStackPopBlocksUntilPush(t *testing.T) {
	s := NewRecycleStack()
	done := make(chan *chunk.Chunk, 1)
	go func() {
		c, _ := s.Pop()
		done <- c
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any chunk was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	c := chunk.New(chunk.DefaultLimits, false)
	s.Push(c)

	select {
	case got := <-done:
		if got != c {
			t.Fatalf("got a different chunk than was pushed")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestRecycleStackCloseUnblocksPop(t *testing.T) {
	s := NewRecycleStack()
	done := make(chan bool, 1)
	go func() {
		_, ok := s.Pop()
		done <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Pop to report false after Close with nothing pushed")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock the pending Pop")
	}
}

func waitRecv(s *Slot) chan Envelope {
	out := make(chan Envelope, 1)
	go func() { out <- s.Recv() }()
	return out
}
