package retrieval

import "testing"

func TestPinRegistry_Refcounting(t *testing.T) {
	pins := NewPinRegistry()
	ids := []string{"a", "b"}

	pins.Pin(ids)
	pins.Pin([]string{"a"})

	if !pins.IsPinned("a") || !pins.IsPinned("b") {
		t.Fatal("expected a and b pinned")
	}

	pins.Release(ids)
	if !pins.IsPinned("a") {
		t.Error("a still has one holder, must stay pinned")
	}
	if pins.IsPinned("b") {
		t.Error("b fully released, must be unpinned")
	}

	pins.Release([]string{"a"})
	if pins.IsPinned("a") {
		t.Error("a fully released, must be unpinned")
	}

	// over-release is a no-op
	pins.Release([]string{"a", "never-pinned"})
	if pins.IsPinned("a") {
		t.Error("over-released id must stay unpinned")
	}
}
