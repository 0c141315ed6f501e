package service

import (
	"testing"

	"github.com/chatty-im/chatty/internal/core/port"
)

func TestSaveTokenRemembered(t *testing.T) {
	durable, session := newMapStore(), newMapStore()
	session.Set(port.KeyAuthToken, "stale")
	a := NewAuth(durable, session)

	if err := a.SaveToken("tok-1", true); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if v, _ := durable.Get(port.KeyAuthToken); v != "tok-1" {
		t.Errorf("durable token = %q, want tok-1", v)
	}
	if v, _ := durable.Get(port.KeyUserState); v != "ONLINE" {
		t.Errorf("durable state = %q, want ONLINE", v)
	}
	if _, ok := session.Get(port.KeyAuthToken); ok {
		t.Error("session token not cleared")
	}
}

func TestSaveTokenSessionOnly(t *testing.T) {
	durable, session := newMapStore(), newMapStore()
	durable.Set(port.KeyAuthToken, "stale")
	a := NewAuth(durable, session)

	if err := a.SaveToken("tok-2", false); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if v, _ := session.Get(port.KeyAuthToken); v != "tok-2" {
		t.Errorf("session token = %q, want tok-2", v)
	}
	if _, ok := durable.Get(port.KeyAuthToken); ok {
		t.Error("durable token not cleared")
	}
}

func TestTokenPrecedence(t *testing.T) {
	durable, session := newMapStore(), newMapStore()
	a := NewAuth(durable, session)
	if got := a.Token(); got != "" {
		t.Errorf("Token() = %q, want empty", got)
	}
	session.Set(port.KeyAuthToken, "sess")
	if got := a.Token(); got != "sess" {
		t.Errorf("Token() = %q, want session token", got)
	}
	durable.Set(port.KeyAuthToken, "dur")
	if got := a.Token(); got != "dur" {
		t.Errorf("Token() = %q, want durable token first", got)
	}
}

func TestLogoutClearsBothStores(t *testing.T) {
	durable, session := newMapStore(), newMapStore()
	durable.Set(port.KeyAuthToken, "tok")
	durable.Set(port.KeyUserState, "BUSY")
	session.Set(port.KeyAuthToken, "tok")
	session.Set(port.KeyUserState, "BUSY")

	a := NewAuth(durable, session)
	if err := a.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	for _, s := range []*mapStore{durable, session} {
		if _, ok := s.Get(port.KeyAuthToken); ok {
			t.Error("token survived logout")
		}
		if _, ok := s.Get(port.KeyUserState); ok {
			t.Error("user state survived logout")
		}
	}
}
