package service

import (
	"fmt"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
)

// Auth stores the bearer token and initial presence state in exactly one of
// the two client stores, keyed by the remember-me choice at login: the
// durable store when remembered, the session store otherwise. The other store
// is always cleared.
type Auth struct {
	durable port.StateStore
	session port.StateStore
}

func NewAuth(durable, session port.StateStore) *Auth {
	return &Auth{durable: durable, session: session}
}

// Token returns the stored bearer token, durable store first.
func (a *Auth) Token() string {
	if v, ok := a.durable.Get(port.KeyAuthToken); ok && v != "" {
		return v
	}
	if v, ok := a.session.Get(port.KeyAuthToken); ok && v != "" {
		return v
	}
	return ""
}

// SaveToken records a fresh token after authentication and resets the user
// state to ONLINE in the same store.
func (a *Auth) SaveToken(token string, rememberMe bool) error {
	target, other := a.session, a.durable
	if rememberMe {
		target, other = a.durable, a.session
	}
	if err := target.Set(port.KeyAuthToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := target.Set(port.KeyUserState, string(domain.StateOnline)); err != nil {
		return fmt.Errorf("store user state: %w", err)
	}
	if err := other.Delete(port.KeyAuthToken); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	if err := other.Delete(port.KeyUserState); err != nil {
		return fmt.Errorf("clear user state: %w", err)
	}
	return nil
}

// Logout removes the token and user state from both stores.
func (a *Auth) Logout() error {
	for _, s := range []port.StateStore{a.durable, a.session} {
		if err := s.Delete(port.KeyAuthToken); err != nil {
			return fmt.Errorf("clear token: %w", err)
		}
		if err := s.Delete(port.KeyUserState); err != nil {
			return fmt.Errorf("clear user state: %w", err)
		}
	}
	return nil
}
