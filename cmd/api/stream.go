package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lifeline/auth"
	"lifeline/authority"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

const streamWriteTimeout = 10 * time.Second

// handleStream upgrades to a websocket and pushes the full active set on
// every store change. One store subscription per connection; it is released
// when the peer goes away so listeners never leak.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok || principal.Role != auth.RoleAuthority {
		writeError(w, http.StatusForbidden, "authority role required")
		return
	}

	feed := authority.NewFeed(s.store, nil, principal.UserID, s.log)
	if p, ok := positionFromQuery(r); ok {
		feed = feed.WithPosition(p)
	}

	sub, err := s.subscriber.Subscribe(r.Context())
	if err != nil {
		s.log.Error("stream subscribe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not subscribe")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	defer func() {
		sub.Close()
		conn.Close()
	}()

	// Reads are only consumed to detect the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-sub.C:
			if !ok {
				return
			}
			items := make([]alertResponse, 0, len(snapshot))
			for _, ranked := range feed.Decorate(snapshot) {
				item := toAlertResponse(ranked.Alert)
				item.DistanceKm = ranked.DistanceKm
				items = append(items, item)
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(map[string]any{"items": items}); err != nil {
				s.log.Info("stream consumer gone", zap.Error(err))
				return
			}
		}
	}
}
