package server

import (
	"net"

	"github.com/rs/zerolog"

	"lancast/internal/netio"
	"lancast/internal/wire"
)

// HandleJoins accepts every join query and answers it with a unicast
// to the querier's address at our send port. WrongName exists on the
// wire but this server admits everyone.
func HandleJoins(in <-chan netio.Datagram, name string, sendPort uint16, log zerolog.Logger) {
	go func() {
		for d := range in {
			if _, ok := d.Msg.(wire.JoinQuery); !ok {
				continue
			}
			dest := &net.UDPAddr{IP: d.Src.IP, Port: int(sendPort)}
			if err := netio.SendTo(dest, name, wire.JoinResponse{Reason: wire.JoinAccepted}); err != nil {
				log.Warn().Err(err).Stringer("dest", dest).Msg("join response dropped")
				continue
			}
			log.Info().Str("peer", d.Peer).Stringer("dest", dest).Msg("accepted join")
		}
	}()
}
