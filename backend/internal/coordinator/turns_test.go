package coordinator

import (
	"fmt"
	"testing"
)

func TestTurnRegistry_LookupAndEviction(t *testing.T) {
	reg := newTurnRegistry(2)

	reg.record("t1", TurnRecord{RetrievedIDs: []string{"a"}})
	reg.record("t2", TurnRecord{RetrievedIDs: []string{"b"}, UsedIDs: []string{"b"}})

	rec, ok := reg.lookup("t2")
	if !ok {
		t.Fatal("expected t2 recorded")
	}
	if len(rec.UsedIDs) != 1 || rec.UsedIDs[0] != "b" {
		t.Errorf("expected used ids [b], got %v", rec.UsedIDs)
	}

	// a third turn pushes the oldest out
	reg.record("t3", TurnRecord{RetrievedIDs: []string{"c"}})
	if _, ok := reg.lookup("t1"); ok {
		t.Error("expected oldest turn evicted beyond the cap")
	}
	if _, ok := reg.lookup("t2"); !ok {
		t.Error("expected t2 still addressable")
	}
	if _, ok := reg.lookup("t3"); !ok {
		t.Error("expected newest turn addressable")
	}
}

func TestTurnRegistry_ReRecordDoesNotDuplicate(t *testing.T) {
	reg := newTurnRegistry(3)

	reg.record("t1", TurnRecord{RetrievedIDs: []string{"a"}})
	reg.record("t1", TurnRecord{RetrievedIDs: []string{"a", "b"}})
	for i := 0; i < 2; i++ {
		reg.record(fmt.Sprintf("extra-%d", i), TurnRecord{})
	}

	rec, ok := reg.lookup("t1")
	if !ok {
		t.Fatal("re-recording must not count against the cap twice")
	}
	if len(rec.RetrievedIDs) != 2 {
		t.Errorf("expected the later record to win, got %v", rec.RetrievedIDs)
	}
}
