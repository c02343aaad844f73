package security

import (
	"errors"
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("admin12345")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "admin12345" {
		t.Fatal("Hash returned plaintext or empty")
	}
	if err := h.Compare(hash, "admin12345"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	h := NewHasher(4)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatal("expected distinct salted hashes")
	}
}

func TestHasher_CompareWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("secret123")
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestHasher_CompareDecoyAlwaysFails(t *testing.T) {
	h := NewHasher(4)
	if err := h.CompareDecoy("decoy-password"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestHasher_RejectsEmpty(t *testing.T) {
	if _, err := NewHasher(4).Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h0 := NewHasher(0); h0.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h0.Cost)
	}
	if h1 := NewHasher(2); h1.Cost != 4 {
		t.Errorf("cost below MinCost should clamp to 4, got %d", h1.Cost)
	}
}
