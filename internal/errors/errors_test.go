package errors

import (
	"errors"
	"testing"
)

type customError struct {
	Msg string
}

func (e customError) Error() string { return e.Msg }

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "test error" {
		t.Errorf("expected 'test error', got '%s'", err.Error())
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("wrap non-nil error", func(t *testing.T) {
		wrapped := Wrap(baseErr, "wrapped")
		if wrapped == nil {
			t.Fatal("expected wrapped error, got nil")
		}
		if wrapped.Error() != "wrapped: base error" {
			t.Errorf("unexpected message '%s'", wrapped.Error())
		}
		if !errors.Is(wrapped, baseErr) {
			t.Error("expected wrapped error to wrap baseErr")
		}
	})

	t.Run("wrap nil error", func(t *testing.T) {
		if wrapped := Wrap(nil, "wrapped"); wrapped != nil {
			t.Errorf("expected nil, got %v", wrapped)
		}
	})

	t.Run("double wrap keeps category", func(t *testing.T) {
		inner := Wrap(ErrForbidden, "no wrapped key for caller")
		outer := Wrap(inner, "get group key")
		if !Is(outer, ErrForbidden) {
			t.Error("expected outer error to match ErrForbidden")
		}
	})
}

func TestIs(t *testing.T) {
	if !Is(ErrNotFound, ErrNotFound) {
		t.Error("expected ErrNotFound to be ErrNotFound")
	}
	if Is(Wrap(ErrNotFound, "context"), ErrConflict) {
		t.Error("expected wrapped ErrNotFound not to match ErrConflict")
	}
}

func TestAs(t *testing.T) {
	err := Wrap(customError{Msg: "custom"}, "context")

	var target customError
	if !As(err, &target) {
		t.Fatal("expected As to find customError")
	}
	if target.Msg != "custom" {
		t.Errorf("expected 'custom', got '%s'", target.Msg)
	}
}

func TestJoin(t *testing.T) {
	if Join(nil, nil) != nil {
		t.Error("expected nil when joining only nils")
	}

	joined := Join(ErrUnavailable, nil, ErrConflict)
	if !Is(joined, ErrUnavailable) || !Is(joined, ErrConflict) {
		t.Error("expected joined error to match both categories")
	}
}
