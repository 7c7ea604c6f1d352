package client

import (
	"sync/atomic"

	"lancast/internal/netio"
)

// PacketCounter tallies packets flowing through the pipeline. The
// pinger drains it on every ping so the server learns how much of its
// traffic actually arrived here.
type PacketCounter struct {
	n atomic.Uint64
}

// TakeSinceLast returns the count accumulated since the previous call
// and resets it, starting the next accounting epoch.
func (c *PacketCounter) TakeSinceLast() uint64 {
	return c.n.Swap(0)
}

// CountPackets forwards the stream unchanged while counting every item
// that passes. The output closes when the input closes.
func CountPackets(in <-chan netio.Datagram) (<-chan netio.Datagram, *PacketCounter) {
	counter := &PacketCounter{}
	out := make(chan netio.Datagram, 100)
	go func() {
		defer close(out)
		for d := range in {
			counter.n.Add(1)
			out <- d
		}
	}()
	return out, counter
}
