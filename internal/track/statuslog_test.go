package track

import (
	"testing"
	"time"
)

func TestStatusLogAdjacentDedup(t *testing.T) {
	l := NewStatusLog()
	now := time.Now()

	if !l.Append(now, "Loading files...") {
		t.Fatal("first append rejected")
	}
	if l.Append(now, "Loading files...") {
		t.Fatal("adjacent duplicate appended")
	}
	if !l.Append(now, "Computing similarities...") {
		t.Fatal("new message rejected")
	}
	// Not adjacent anymore, so it may come back.
	if !l.Append(now, "Loading files...") {
		t.Fatal("non-adjacent repeat rejected")
	}

	entries := l.Entries()
	want := []string{"Loading files...", "Computing similarities...", "Loading files..."}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, msg := range want {
		if entries[i].Message != msg {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Message, msg)
		}
	}
}

func TestStatusLogIgnoresEmpty(t *testing.T) {
	l := NewStatusLog()
	if l.Append(time.Now(), "") {
		t.Fatal("empty message appended")
	}
	if l.Len() != 0 {
		t.Fatalf("got %d entries, want 0", l.Len())
	}
}

func TestStatusLogLast(t *testing.T) {
	l := NewStatusLog()
	if _, ok := l.Last(); ok {
		t.Fatal("Last on empty log reported an entry")
	}
	l.Append(time.Now(), "a")
	l.Append(time.Now(), "b")
	last, ok := l.Last()
	if !ok || last.Message != "b" {
		t.Fatalf("Last = %+v, %v; want b, true", last, ok)
	}
}

func TestStatusLogEntriesIsCopy(t *testing.T) {
	l := NewStatusLog()
	l.Append(time.Now(), "a")
	entries := l.Entries()
	entries[0].Message = "mutated"
	if got := l.Entries()[0].Message; got != "a" {
		t.Fatalf("log mutated through snapshot: %q", got)
	}
}
