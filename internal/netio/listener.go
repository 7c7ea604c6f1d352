// Package netio binds the UDP sockets: a multi-socket listener that
// publishes decoded datagrams on one stream, a fire-and-forget unicast
// sender, and the broadcaster with its priority and rate-limited lanes.
package netio

import (
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"lancast/internal/wire"
)

// Datagram is one decoded packet as delivered to consumers.
type Datagram struct {
	Src  *net.UDPAddr
	Peer string
	Msg  wire.Message
}

// recvBuf comfortably holds a max-payload packet plus header.
const recvBuf = 1<<16 + 512

// Listener reads datagrams off one or more sockets and publishes them
// as a single ordered stream. Packets carrying our own peer name are
// dropped: broadcast sockets hear their own transmissions.
type Listener struct {
	ch    chan Datagram
	conns []*net.UDPConn
	wg    sync.WaitGroup
	log   zerolog.Logger
}

// Listen binds every address and starts one receiver per socket.
func Listen(addrs []*net.UDPAddr, selfName string, log zerolog.Logger) (*Listener, error) {
	l := &Listener{
		ch:  make(chan Datagram, 100),
		log: log,
	}
	for _, addr := range addrs {
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.conns = append(l.conns, conn)
		l.wg.Add(1)
		go l.receive(conn, selfName)
	}
	go func() {
		l.wg.Wait()
		close(l.ch)
	}()
	return l, nil
}

// C is the stream of decoded datagrams. It closes after Close.
func (l *Listener) C() <-chan Datagram {
	return l.ch
}

// Addrs reports the bound socket addresses.
func (l *Listener) Addrs() []*net.UDPAddr {
	addrs := make([]*net.UDPAddr, len(l.conns))
	for i, conn := range l.conns {
		addrs[i] = conn.LocalAddr().(*net.UDPAddr)
	}
	return addrs
}

// Close shuts every socket; the stream closes once the receivers exit.
func (l *Listener) Close() {
	for _, conn := range l.conns {
		conn.Close()
	}
}

func (l *Listener) receive(conn *net.UDPConn, selfName string) {
	defer l.wg.Done()
	buf := make([]byte, recvBuf)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Error().Err(err).Stringer("socket", conn.LocalAddr()).Msg("receive failed, socket closing")
			}
			return
		}
		name, msg, err := wire.Decode(buf[:n])
		if err != nil {
			// Foreign traffic says nothing; our own corrupted
			// traffic gets a warning. Either way the next
			// datagram is unaffected.
			if !errors.Is(err, wire.ErrInvalidMagic) {
				l.log.Warn().Err(err).Stringer("src", src).Msg("dropping undecodable packet")
			}
			continue
		}
		if name == selfName {
			continue
		}
		l.ch <- Datagram{Src: src, Peer: name, Msg: msg}
	}
}
