package client

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/netio"
	"lancast/internal/wire"
)

// ErrServerLost is returned when the server stops answering pings.
var ErrServerLost = errors.New("server stopped answering pings")

// RunPinger sends a ping every period, carrying the packet count the
// counter gathered since the previous ping, and watches the stream for
// pongs. Once threshold consecutive pings have gone unanswered, the
// next tick gives up: the server is gone.
func RunPinger(
	in <-chan netio.Datagram,
	comm ServerComm,
	counter *PacketCounter,
	period time.Duration,
	threshold int,
	log zerolog.Logger,
) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ticker.C:
			missed++
			if missed > threshold {
				return ErrServerLost
			}
			nonce := rand.Uint64()
			recvs := counter.TakeSinceLast()
			if err := comm.Send(wire.Ping{Nonce: nonce, Recvs: recvs}); err != nil {
				log.Warn().Err(err).Msg("ping dropped")
				continue
			}
			log.Debug().Uint64("nonce", nonce).Uint64("recvs", recvs).Int("missed", missed).Msg("ping sent")
		case d, ok := <-in:
			if !ok {
				return ErrStreamClosed
			}
			if pong, ok := d.Msg.(wire.Pong); ok {
				log.Debug().Uint64("nonce", pong.Nonce).Msg("pong received")
				missed = 0
			}
		}
	}
}
