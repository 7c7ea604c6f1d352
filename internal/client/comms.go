package client

import (
	"net"

	"lancast/internal/netio"
	"lancast/internal/wire"
)

// ServerComm is how every client task talks back to the joined server.
type ServerComm struct {
	Addr *net.UDPAddr
	Name string
}

// Send unicasts one message to the server.
func (c ServerComm) Send(m wire.Message) error {
	return netio.SendTo(c.Addr, c.Name, m)
}
