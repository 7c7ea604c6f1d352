package netio

import (
	"context"
	"net"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"lancast/internal/observability"
	"lancast/internal/ratelimit"
	"lancast/internal/wire"
)

// Broadcaster owns the outbound socket. Two lanes feed it: Priority
// for messages that must never wait behind bulk traffic (announces,
// pongs, join responses), Normal for everything the rate limiter
// governs. A ready priority message always preempts the normal lane —
// if pongs queued behind chunks, clients would time out exactly when
// the channel is congested.
type Broadcaster struct {
	priority chan wire.Message
	normal   chan wire.Message
}

// NewBroadcaster opens a broadcast-capable socket and starts the send
// loop. Each message is encoded once and sent to every destination in
// order. Send errors drop the packet; a carousel will revisit.
func NewBroadcaster(
	dests []*net.UDPAddr,
	name string,
	limiter *ratelimit.Limiter,
	log zerolog.Logger,
	metrics *observability.Metrics,
) (*Broadcaster, error) {
	conn, err := listenBroadcast()
	if err != nil {
		return nil, err
	}
	b := &Broadcaster{
		priority: make(chan wire.Message, 100),
		normal:   make(chan wire.Message, 100),
	}
	go b.run(conn, dests, name, limiter, log, metrics)
	return b, nil
}

// Priority is the lane that bypasses the rate limiter.
func (b *Broadcaster) Priority() chan<- wire.Message {
	return b.priority
}

// Normal is the rate-limited lane.
func (b *Broadcaster) Normal() chan<- wire.Message {
	return b.normal
}

func (b *Broadcaster) run(
	conn *net.UDPConn,
	dests []*net.UDPAddr,
	name string,
	limiter *ratelimit.Limiter,
	log zerolog.Logger,
	metrics *observability.Metrics,
) {
	defer conn.Close()
	for {
		// Drain the priority lane first; fall through to waiting on
		// both only when no priority message is ready.
		select {
		case m := <-b.priority:
			b.send(conn, dests, name, m, "priority", log, metrics)
			continue
		default:
		}
		select {
		case m := <-b.priority:
			b.send(conn, dests, name, m, "priority", log, metrics)
		case m := <-b.normal:
			limiter.OnPacket()
			b.send(conn, dests, name, m, "normal", log, metrics)
		}
	}
}

func (b *Broadcaster) send(
	conn *net.UDPConn,
	dests []*net.UDPAddr,
	name string,
	m wire.Message,
	lane string,
	log zerolog.Logger,
	metrics *observability.Metrics,
) {
	pkt, err := wire.Encode(name, m)
	if err != nil {
		log.Error().Err(err).Msg("dropping unencodable message")
		metrics.RecordSendError()
		return
	}
	for _, dest := range dests {
		if _, err := conn.WriteToUDP(pkt, dest); err != nil {
			log.Warn().Err(err).Stringer("dest", dest).Msg("send failed, packet dropped")
			metrics.RecordSendError()
		}
	}
	metrics.RecordPacketSent(lane)
	log.Trace().Str("lane", lane).Type("msg", m).Msg("message on wire")
}

// listenBroadcast binds an ephemeral UDP socket with SO_BROADCAST set
// so the 255.255.255.255-style destinations are accepted.
func listenBroadcast() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
