// Package console renders the call surface and ringtone as log output for
// the headless client build.
package console

import (
	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
)

// Surface implements port.CallSurface. Opening is instantaneous, so Show*
// returning already satisfies the "opened" ordering contract.
type Surface struct{}

func NewSurface() *Surface {
	return &Surface{}
}

func (s *Surface) ShowPending(peer string, state domain.CallState) {
	log.Info().Str("peer", peer).Str("state", string(state)).Msg("call surface: pending")
}

func (s *Surface) ShowActive(peer string) {
	log.Info().Str("peer", peer).Msg("call surface: in call")
}

func (s *Surface) ShowError() {
	log.Error().Msg("call surface: call failed")
}

func (s *Surface) Hide() {
	log.Info().Msg("call surface: closed")
}

// Ringer implements port.Ringer.
type Ringer struct{}

func NewRinger() *Ringer {
	return &Ringer{}
}

func (r *Ringer) Play() {
	log.Info().Msg("ringtone: ringing")
}

func (r *Ringer) Stop() {}
