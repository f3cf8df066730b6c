package registry_test

import (
	"testing"

	"vn.io.arda/realtime/internal/classify/registry"
	"vn.io.arda/realtime/internal/domain"
)

func mustParse(t *testing.T, frame string) domain.Message {
	t.Helper()
	msg, err := domain.ParseMessage([]byte(frame))
	if err != nil {
		t.Fatalf("parse %s: %v", frame, err)
	}
	return msg
}

func TestRegisterAndDispatch(t *testing.T) {
	r := registry.New()
	called := false
	r.Register("TEST_EVENT", func(msg domain.Message) *domain.Candidate {
		called = true
		return &domain.Candidate{Title: "test"}
	})

	result := r.Dispatch(mustParse(t, `{"type":"TEST_EVENT"}`))

	if !called {
		t.Fatal("handler was not called")
	}
	if result == nil || result.Title != "test" {
		t.Fatal("unexpected result")
	}
}

func TestDispatch_UnknownType_ReturnsNil(t *testing.T) {
	r := registry.New()
	if result := r.Dispatch(mustParse(t, `{"type":"UNKNOWN_EVENT_XYZ"}`)); result != nil {
		t.Fatal("expected nil for unknown type")
	}
}

func TestDispatch_Fallback(t *testing.T) {
	r := registry.New()
	r.SetFallback(func(msg domain.Message) *domain.Candidate {
		return &domain.Candidate{Title: msg.Type}
	})

	result := r.Dispatch(mustParse(t, `{"type":"anything"}`))
	if result == nil || result.Title != "anything" {
		t.Fatal("fallback not used")
	}
}

func TestIgnore(t *testing.T) {
	r := registry.New()
	r.SetFallback(func(domain.Message) *domain.Candidate { return &domain.Candidate{} })
	r.Ignore("ping", "pong")

	if r.Dispatch(mustParse(t, `{"type":"ping"}`)) != nil {
		t.Fatal("ignored type produced a candidate")
	}
	if len(r.Types()) != 2 {
		t.Fatalf("expected 2 types, got %v", r.Types())
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r := registry.New()
	r.Register("DUPE_EVENT", func(domain.Message) *domain.Candidate { return nil })
	r.Register("DUPE_EVENT", func(domain.Message) *domain.Candidate { return nil })
}
