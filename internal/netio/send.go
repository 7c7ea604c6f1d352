package netio

import (
	"net"

	"lancast/internal/wire"
)

// SendTo unicasts one message from an ephemeral socket. There is no
// retry here: listing requests, chunk requests and pings are repeated
// by their callers' timers, while join queries, join responses and the
// disconnect notice go out once per trigger.
func SendTo(addr *net.UDPAddr, name string, m wire.Message) error {
	pkt, err := wire.Encode(name, m)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.WriteToUDP(pkt, addr)
	return err
}
