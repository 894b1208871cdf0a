package session

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKindClassification(t *testing.T) {
	err := E(KindAuth, "login", errors.New("invalid credentials"))

	kind, ok := KindOf(err)
	if !ok || kind != KindAuth {
		t.Fatalf("expected auth kind, got %v (classified=%v)", kind, ok)
	}
	if !IsFatal(err) {
		t.Fatal("expected auth error to be fatal")
	}
	if IsTransient(err) {
		t.Fatal("expected auth error to not be transient")
	}
}

func TestKindClassificationWrapped(t *testing.T) {
	err := errors.Wrap(E(KindFetch, "fetch", errors.New("partial response")), "resolving")

	if !IsTransient(err) {
		t.Fatal("expected wrapped fetch error to be transient")
	}
	if IsFatal(err) {
		t.Fatal("expected fetch error to not be fatal")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("expected plain error to have no kind")
	}
	if IsFatal(errors.New("plain")) || IsTransient(errors.New("plain")) {
		t.Fatal("expected plain error to be neither fatal nor transient")
	}
}

func TestErrorString(t *testing.T) {
	err := E(KindMailbox, "select", errors.New("no such mailbox"))
	want := "select: mailbox error: no such mailbox"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestBenignIdleError(t *testing.T) {
	if !isBenignIdleError(nil) {
		t.Fatal("expected nil error to be benign")
	}
	if !isBenignIdleError(errors.New("read tcp: use of closed network connection")) {
		t.Fatal("expected closed network connection to be benign")
	}
	if isBenignIdleError(errors.New("server hiccup")) {
		t.Fatal("expected other errors to be non-benign")
	}
}
