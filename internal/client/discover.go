package client

import (
	"errors"
	"net"

	"github.com/rs/zerolog"

	"lancast/internal/netio"
	"lancast/internal/wire"
)

// ErrStreamClosed is returned when the listener stream ends while a
// state machine still needs it.
var ErrStreamClosed = errors.New("listener stream closed")

// Discover waits for a server announce, asks to join, and returns the
// server's reply address once the join is accepted. With serverName
// set, announces from other servers are ignored. A rejected join drops
// back to waiting for the next announce.
func Discover(in <-chan netio.Datagram, myName, serverName string, log zerolog.Logger) (*net.UDPAddr, error) {
	var pending *net.UDPAddr
	for d := range in {
		if serverName != "" && d.Peer != serverName {
			continue
		}
		switch msg := d.Msg.(type) {
		case wire.Announce:
			if pending != nil {
				continue
			}
			addr := &net.UDPAddr{IP: d.Src.IP, Port: int(msg.Port)}
			if err := netio.SendTo(addr, myName, wire.JoinQuery{}); err != nil {
				log.Warn().Err(err).Stringer("server", addr).Msg("join query dropped")
				continue
			}
			log.Info().Str("server", d.Peer).Stringer("addr", addr).Msg("server discovered, joining")
			pending = addr
		case wire.JoinResponse:
			if pending == nil || !d.Src.IP.Equal(pending.IP) {
				continue
			}
			if msg.Reason == wire.JoinAccepted {
				log.Info().Stringer("server", pending).Msg("join accepted")
				return pending, nil
			}
			log.Error().Str("reason", string(msg.Reason)).Msg("join rejected, rediscovering")
			pending = nil
		}
	}
	return nil, ErrStreamClosed
}
