package session

import (
	"testing"
	"time"

	"rtmfp/wire"
)

func TestWriterSendAssignsIncreasingStages(t *testing.T) {
	now := time.Now()
	w := NewWriter(1, 0, NetConnectionSignature(), true, now)

	m1 := w.Send([]byte("one"), 0, now)
	m2 := w.Send([]byte("two"), 0, now)

	if m1.Type != wire.TypeReliable || m2.Type != wire.TypeReliable {
		t.Fatalf("expected TypeReliable for first transmission")
	}
	if w.Unacked() != 2 {
		t.Fatalf("expected 2 unacked stages, got %d", w.Unacked())
	}
}

func TestWriterAcknowledgeReleasesStages(t *testing.T) {
	now := time.Now()
	w := NewWriter(1, 0, NetConnectionSignature(), true, now)
	w.Send([]byte("a"), 0, now)
	w.Send([]byte("b"), 0, now)
	w.Send([]byte("c"), 0, now)

	w.Acknowledge(2, 0, now)
	if w.Unacked() != 1 {
		t.Fatalf("expected 1 unacked stage after cumulative ack of 2, got %d", w.Unacked())
	}
}

func TestWriterNackMarksRetransmit(t *testing.T) {
	now := time.Now()
	w := NewWriter(1, 0, NetConnectionSignature(), true, now)
	w.Send([]byte("a"), 0, now)
	w.Send([]byte("b"), 0, now)

	w.Acknowledge(0, 1<<1, now) // bit 1 => stage baseline+1+1 = 2
	msgs := w.PendingRetransmits(now, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 retransmit, got %d", len(msgs))
	}
	if msgs[0].Type != wire.TypeReliableCont {
		t.Fatal("expected retransmit to use continuation type")
	}
}

func TestWriterRetransmitsAfterTimeout(t *testing.T) {
	now := time.Now()
	w := NewWriter(1, 0, NetConnectionSignature(), true, now)
	w.Send([]byte("a"), 0, now)

	later := now.Add(MinRetransmitInterval + time.Millisecond)
	msgs := w.PendingRetransmits(later, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected forced retransmit of lowest unacked stage, got %d", len(msgs))
	}
}
