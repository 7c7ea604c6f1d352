// Package server holds the transmission side of the protocol: the
// listing and chunk carousels, on-demand resends, the presence beacon,
// the join handler and the ping observer.
package server

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/fsio"
	"lancast/internal/netio"
	"lancast/internal/observability"
	"lancast/internal/pipeline"
	"lancast/internal/wire"
)

// Transmitter drives everything the server pushes on the normal lane:
// a listing carousel cycling all fragments over ListingSpan, an
// unsolicited chunk carousel walking (file, chunk) pairs, and direct
// replies to listing and chunk requests. Replies clamp out-of-range
// indices instead of erroring — a confused client is best helped by
// data, not silence.
type Transmitter struct {
	// ListingSpan is how long one full cycle of listing fragments takes.
	ListingSpan time.Duration
	// ChunkInterval is the pause between unsolicited chunks.
	ChunkInterval time.Duration

	fragments []wire.FileListingFragment
	baseDir   string
	normal    chan<- wire.Message
	log       zerolog.Logger
	metrics   *observability.Metrics
}

// NewTransmitter builds a transmitter serving the given fragments from
// baseDir onto the normal broadcast lane.
func NewTransmitter(
	fragments []wire.FileListingFragment,
	baseDir string,
	normal chan<- wire.Message,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Transmitter {
	return &Transmitter{
		ListingSpan:   5 * time.Second,
		ChunkInterval: 100 * time.Millisecond,
		fragments:     fragments,
		baseDir:       baseDir,
		normal:        normal,
		log:           log,
		metrics:       metrics,
	}
}

// Run splits the inbound stream by request type and starts the three
// duties. It returns immediately; the duties live until the process
// exits.
func (t *Transmitter) Run(in <-chan netio.Datagram) {
	listingReqs, rest := pipeline.Branch(in, func(d netio.Datagram) bool {
		_, ok := d.Msg.(wire.FileListingRequest)
		return ok
	}, false)
	chunkReqs, rest := pipeline.Branch(rest, func(d netio.Datagram) bool {
		_, ok := d.Msg.(wire.FileChunkRequest)
		return ok
	}, false)
	pipeline.Drain(rest)

	if len(t.fragments) == 0 {
		t.log.Warn().Msg("no files to serve, transmission idle")
		pipeline.Drain(listingReqs)
		pipeline.Drain(chunkReqs)
		return
	}

	go t.listingLoop(listingReqs)
	go t.chunkReplyLoop(chunkReqs)
	go t.chunkCarousel()
}

// listingLoop interleaves the round-robin listing carousel with
// on-demand fragment resends.
func (t *Transmitter) listingLoop(requests <-chan netio.Datagram) {
	period := t.ListingSpan / time.Duration(len(t.fragments))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	next := 0
	for {
		var fragment wire.FileListingFragment
		select {
		case <-ticker.C:
			fragment = t.fragments[next]
			next = (next + 1) % len(t.fragments)
		case d, ok := <-requests:
			if !ok {
				return
			}
			req := d.Msg.(wire.FileListingRequest)
			idx := req.Idx
			if idx >= uint32(len(t.fragments)) {
				idx = uint32(len(t.fragments)) - 1
			}
			t.log.Debug().Str("peer", d.Peer).Uint32("idx", idx).Msg("listing fragment requested")
			fragment = t.fragments[idx]
		}
		t.normal <- wire.FileListing{FileListingFragment: fragment}
		t.metrics.RecordListingSent()
	}
}

// chunkReplyLoop serves requested chunks. It owns its own mmap cache;
// a filesystem error is fatal to this duty only.
func (t *Transmitter) chunkReplyLoop(requests <-chan netio.Datagram) {
	cache := fsio.NewMmapCache()
	defer cache.Close()

	for d := range requests {
		req := d.Msg.(wire.FileChunkRequest)
		idx := req.Idx
		if idx >= uint32(len(t.fragments)) {
			idx = uint32(len(t.fragments)) - 1
		}
		fragment := t.fragments[idx]
		chunk := req.Chunk
		if n := fragment.NumChunks(); n > 0 && chunk >= n {
			chunk = n - 1
		}
		msg, err := t.readChunk(cache, fragment, idx, chunk)
		if err != nil {
			t.log.Error().Err(err).Str("path", fragment.Path).Msg("chunk read failed, reply duty aborting")
			pipeline.Drain(requests)
			return
		}
		t.log.Debug().Str("peer", d.Peer).Uint32("file", idx).Uint64("chunk", chunk).Msg("chunk requested")
		t.normal <- msg
		t.metrics.RecordChunkServed("request")
	}
}

// chunkCarousel broadcasts every chunk of every file in lexicographic
// (file, chunk) order, forever, pausing ChunkInterval before each one.
func (t *Transmitter) chunkCarousel() {
	cache := fsio.NewMmapCache()
	defer cache.Close()

	var fileIdx uint32
	var chunkIdx uint64
	for {
		time.Sleep(t.ChunkInterval)
		fragment := t.fragments[fileIdx]
		msg, err := t.readChunk(cache, fragment, fileIdx, chunkIdx)
		if err != nil {
			t.log.Error().Err(err).Str("path", fragment.Path).Msg("chunk read failed, carousel aborting")
			return
		}
		t.normal <- msg
		t.metrics.RecordChunkServed("carousel")

		chunkIdx++
		if chunkIdx >= fragment.NumChunks() {
			chunkIdx = 0
			fileIdx = (fileIdx + 1) % uint32(len(t.fragments))
		}
	}
}

func (t *Transmitter) readChunk(cache *fsio.MmapCache, fragment wire.FileListingFragment, idx uint32, chunk uint64) (wire.FileChunk, error) {
	path := filepath.Join(t.baseDir, filepath.FromSlash(fragment.Path))
	data, err := cache.ReadChunk(path, uint64(fragment.ChunkSize), chunk)
	if err != nil {
		return wire.FileChunk{}, err
	}
	return wire.FileChunk{FileChunkData: wire.FileChunkData{Idx: idx, Chunk: chunk, Data: data}}, nil
}
