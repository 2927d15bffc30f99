package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	v := Validation("E_NO_RESOURCE", "need %d sticks", 3)
	if !IsValidation(v) || IsStore(v) {
		t.Fatalf("validation misclassified: %v", v)
	}
	if v.Error() != "need 3 sticks" {
		t.Fatalf("message=%q", v.Error())
	}

	wrapped := fmt.Errorf("purchase: %w", Missing("E_NOT_FOUND", "village 9"))
	if !IsMissing(wrapped) {
		t.Fatalf("missing lost through wrapping")
	}
	if KindOf(wrapped) != KindMissing || CodeOf(wrapped) != "E_NOT_FOUND" {
		t.Fatalf("kind=%v code=%s", KindOf(wrapped), CodeOf(wrapped))
	}
}

func TestStoreWrapping(t *testing.T) {
	io := errors.New("disk gone")
	err := Store("update village", io)
	if !IsStore(err) {
		t.Fatalf("store wrap not classified")
	}
	if !errors.Is(err, io) {
		t.Fatalf("cause lost")
	}
	if err.Error() != "update village: disk gone" {
		t.Fatalf("message=%q", err.Error())
	}

	v := Validation("E_CONFLICT", "tile taken")
	if got := Store("insert", v); got != error(v) {
		t.Fatalf("classified error rewrapped: %v", got)
	}
	if Store("noop", nil) != nil {
		t.Fatalf("nil cause produced an error")
	}
}

func TestUnclassifiedCountsAsStore(t *testing.T) {
	if KindOf(errors.New("boom")) != KindStore {
		t.Fatalf("unclassified error should be a store failure")
	}
	if KindOf(nil) != 0 {
		t.Fatalf("nil has no kind")
	}
	if CodeOf(errors.New("boom")) != "E_INTERNAL" {
		t.Fatalf("unexpected default code")
	}
	if !IsFatal(Fatal("open store", errors.New("no such file"))) {
		t.Fatalf("fatal misclassified")
	}
}
