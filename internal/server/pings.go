package server

import (
	"github.com/rs/zerolog"

	"lancast/internal/netio"
	"lancast/internal/observability"
	"lancast/internal/ratelimit"
	"lancast/internal/wire"
)

// ReplyToPings answers pings on the priority lane and forwards the
// reported receive counts to the rate limiter. Pongs must not sit
// behind rate-limited traffic: clients disconnect after a handful of
// missed pongs, which is exactly when the normal lane is saturated.
func ReplyToPings(
	in <-chan netio.Datagram,
	priority chan<- wire.Message,
	collector chan<- ratelimit.PeerReport,
	log zerolog.Logger,
	metrics *observability.Metrics,
) {
	go func() {
		for d := range in {
			ping, ok := d.Msg.(wire.Ping)
			if !ok {
				continue
			}
			log.Debug().Str("peer", d.Peer).Uint64("nonce", ping.Nonce).Uint64("recvs", ping.Recvs).Msg("ping received")
			collector <- ratelimit.PeerReport{Peer: d.Peer, Recvs: ping.Recvs}
			priority <- wire.Pong{Nonce: ping.Nonce}
			metrics.RecordPongSent()
		}
	}()
}
