package server

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/hashlist"
	"lancast/internal/netio"
	"lancast/internal/ratelimit"
	"lancast/internal/wire"
)

func discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func serveDir(t *testing.T, files map[string][]byte) (string, []wire.FileListingFragment) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	list, err := hashlist.Walk(dir)
	if err != nil {
		t.Fatal(err)
	}
	fragments, err := hashlist.Fragments(list, 512)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fragments
}

func recvMsg(t *testing.T, ch <-chan wire.Message) wire.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a broadcast message")
		return nil
	}
}

func datagram(m wire.Message) netio.Datagram {
	return netio.Datagram{
		Src:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9},
		Peer: "test-client",
		Msg:  m,
	}
}

func startTransmitter(t *testing.T, files map[string][]byte) (chan netio.Datagram, chan wire.Message) {
	t.Helper()
	dir, fragments := serveDir(t, files)
	normal := make(chan wire.Message, 100)
	in := make(chan netio.Datagram, 10)

	tr := NewTransmitter(fragments, dir, normal, discard(), nil)
	// Keep the carousels out of the way of reply tests.
	tr.ListingSpan = time.Hour
	tr.ChunkInterval = time.Hour
	tr.Run(in)
	return in, normal
}

func TestListingRequestClampsIndex(t *testing.T) {
	in, normal := startTransmitter(t, map[string][]byte{
		"a.bin": make([]byte, 1000),
		"b.bin": make([]byte, 300),
	})

	in <- datagram(wire.FileListingRequest{Idx: 99})
	m := recvMsg(t, normal)
	listing, ok := m.(wire.FileListing)
	if !ok {
		t.Fatalf("got %#v, want a FileListing", m)
	}
	if listing.Idx != 1 {
		t.Errorf("out-of-range request served fragment %d, want last fragment 1", listing.Idx)
	}

	in <- datagram(wire.FileListingRequest{Idx: 0})
	m = recvMsg(t, normal)
	if listing := m.(wire.FileListing); listing.Idx != 0 || listing.Total != 2 {
		t.Errorf("fragment = %+v, want idx 0 total 2", listing.FileListingFragment)
	}
}

func TestChunkRequestServesData(t *testing.T) {
	content := make([]byte, 1500)
	for i := range content {
		content[i] = byte(i * 7)
	}
	in, normal := startTransmitter(t, map[string][]byte{"a.bin": content})

	in <- datagram(wire.FileChunkRequest{Idx: 0, Chunk: 1})
	m := recvMsg(t, normal)
	chunk, ok := m.(wire.FileChunk)
	if !ok {
		t.Fatalf("got %#v, want a FileChunk", m)
	}
	if chunk.Idx != 0 || chunk.Chunk != 1 {
		t.Errorf("chunk = (%d, %d), want (0, 1)", chunk.Idx, chunk.Chunk)
	}
	if !bytes.Equal(chunk.Data, content[512:1024]) {
		t.Error("chunk data does not match the file slice")
	}
}

func TestChunkRequestClampsOutOfRange(t *testing.T) {
	content := make([]byte, 1500)
	in, normal := startTransmitter(t, map[string][]byte{"a.bin": content})

	// File 7 does not exist, chunk 1000 does not exist: both clamp.
	in <- datagram(wire.FileChunkRequest{Idx: 7, Chunk: 1000})
	m := recvMsg(t, normal)
	chunk := m.(wire.FileChunk)
	if chunk.Idx != 0 || chunk.Chunk != 2 {
		t.Errorf("chunk = (%d, %d), want clamp to (0, 2)", chunk.Idx, chunk.Chunk)
	}
	if len(chunk.Data) != 1500-1024 {
		t.Errorf("tail chunk is %d bytes, want %d", len(chunk.Data), 1500-1024)
	}
}

func TestListingCarouselRoundRobin(t *testing.T) {
	dir, fragments := serveDir(t, map[string][]byte{
		"a.bin": make([]byte, 100),
		"b.bin": make([]byte, 100),
		"c.bin": make([]byte, 100),
	})
	normal := make(chan wire.Message, 100)
	in := make(chan netio.Datagram)

	tr := NewTransmitter(fragments, dir, normal, discard(), nil)
	tr.ListingSpan = 30 * time.Millisecond
	tr.ChunkInterval = time.Hour
	tr.Run(in)

	var got []uint32
	for len(got) < 6 {
		m := recvMsg(t, normal)
		if listing, ok := m.(wire.FileListing); ok {
			got = append(got, listing.Idx)
		}
	}
	want := []uint32{0, 1, 2, 0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("carousel order = %v, want %v", got, want)
		}
	}
}

func TestChunkCarouselWalksLexicographically(t *testing.T) {
	dir, fragments := serveDir(t, map[string][]byte{
		"a.bin": make([]byte, 1000), // 2 chunks
		"b.bin": make([]byte, 300),  // 1 chunk
	})
	normal := make(chan wire.Message, 100)
	in := make(chan netio.Datagram)

	tr := NewTransmitter(fragments, dir, normal, discard(), nil)
	tr.ListingSpan = time.Hour
	tr.ChunkInterval = time.Millisecond
	tr.Run(in)

	type pair struct {
		file  uint32
		chunk uint64
	}
	var got []pair
	for len(got) < 4 {
		m := recvMsg(t, normal)
		if chunk, ok := m.(wire.FileChunk); ok {
			got = append(got, pair{chunk.Idx, chunk.Chunk})
		}
	}
	want := []pair{{0, 0}, {0, 1}, {1, 0}, {0, 0}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("carousel walk = %v, want %v", got, want)
		}
	}
}

func TestReplyToPings(t *testing.T) {
	in := make(chan netio.Datagram, 1)
	priority := make(chan wire.Message, 1)
	limiter := ratelimit.New(100, 1000, discard(), nil)

	ReplyToPings(in, priority, limiter.Collector(), discard(), nil)
	in <- datagram(wire.Ping{Nonce: 77, Recvs: 5})

	m := recvMsg(t, priority)
	pong, ok := m.(wire.Pong)
	if !ok {
		t.Fatalf("got %#v, want a Pong", m)
	}
	if pong.Nonce != 77 {
		t.Errorf("pong nonce = %d, want 77", pong.Nonce)
	}
}

func TestHandleJoinsAcceptsQuerier(t *testing.T) {
	client, err := netio.Listen([]*net.UDPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 0}}, "client", discard())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	sendPort := uint16(client.Addrs()[0].Port)

	in := make(chan netio.Datagram, 1)
	HandleJoins(in, "server", sendPort, discard())
	in <- datagram(wire.JoinQuery{})

	select {
	case d := <-client.C():
		resp, ok := d.Msg.(wire.JoinResponse)
		if !ok {
			t.Fatalf("got %#v, want a JoinResponse", d.Msg)
		}
		if resp.Reason != wire.JoinAccepted {
			t.Errorf("reason = %q, want Accepted", resp.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no join response arrived")
	}
}
