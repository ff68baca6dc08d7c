package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	emptyID := ID("")
	if !emptyID.IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}

	nonEmptyID := ID("not-empty")
	if nonEmptyID.IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	if _, err := ParseRunID("   "); err == nil {
		t.Error("Expected error for blank run ID")
	}
	id, err := ParseRunID("run-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id.String() != "run-1" {
		t.Errorf("Expected run-1, got %s", id)
	}
}

// TestHasherDeterministic tests that identical value streams hash identically
func TestHasherDeterministic(t *testing.T) {
	a := NewHasher().Float(0.12345678).Complex(complex(1, -1)).Int(3).Sum()
	b := NewHasher().Float(0.12345678).Complex(complex(1, -1)).Int(3).Sum()
	c := NewHasher().Float(0.12345679).Complex(complex(1, -1)).Int(3).Sum()

	if a != b {
		t.Errorf("Expected identical hashes, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected different hashes for different inputs")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Expected 12-char short hash, got %q", a.Short())
	}
}
