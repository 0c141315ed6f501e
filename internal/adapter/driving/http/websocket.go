package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: only for dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and hands it to the broker. The dev broker
// has no real authentication: the bearer token carried in the access_token
// query parameter is taken as the login itself.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("access_token")
	if username == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	log.Info().Str("user", username).Msg("New client connected")
	h.Broker.Serve(conn, username)
}
