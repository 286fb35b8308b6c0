package lock

import (
	"errors"
	"testing"

	"github.com/robinei/darch/internal/dierr"
)

func TestAcquireMutualExclusion(t *testing.T) {
	path := t.TempDir() + "/darch.lock"

	l1, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %s", err)
	}

	_, err = Acquire(path)
	if err == nil {
		t.Fatal("second Acquire on an already-held lock should fail")
	}
	var already *dierr.AlreadyRunning
	if !errors.As(err, &already) {
		t.Errorf("want *dierr.AlreadyRunning, got %T: %v", err, err)
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %s", err)
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release should succeed, got: %s", err)
	}
	if err := l2.Release(); err != nil {
		t.Fatalf("second Release: %s", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/darch.lock"
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %s", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %s", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release on an already-released lock should be a no-op, got: %s", err)
	}
}

