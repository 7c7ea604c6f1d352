package server

import (
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/wire"
)

// BroadcastPresence announces the server once a second on the priority
// lane. The announce carries the port clients should talk back to.
func BroadcastPresence(priority chan<- wire.Message, listenPort uint16, log zerolog.Logger) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			priority <- wire.Announce{Port: listenPort}
			log.Trace().Uint16("port", listenPort).Msg("presence announced")
		}
	}()
}
