package client

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/fsio"
	"lancast/internal/netio"
	"lancast/internal/pipeline"
	"lancast/internal/progress"
	"lancast/internal/wire"
)

// DownloadFile reconstructs one file from its chunk substream. The
// target is preallocated to its final size before the first chunk
// lands. On the request cadence the lowest missing chunk is asked for;
// a cadence of zero means pure passive listening. Duplicate chunks
// rewrite the same bytes and change nothing.
//
// The substream is drained before returning so the upstream splitter
// never stalls on a finished file.
func DownloadFile(
	in <-chan netio.Datagram,
	comm ServerComm,
	file wire.FileListingFragment,
	chunks ChunkState,
	events chan<- progress.Event,
	requestInterval time.Duration,
	baseDir string,
	log zerolog.Logger,
) error {
	path := filepath.Join(baseDir, filepath.FromSlash(file.Path))
	if err := fsio.Allocate(path, file.Size); err != nil {
		log.Error().Err(err).Str("path", path).Msg("preallocation failed")
		pipeline.Drain(in)
		return err
	}

	finish := func() {
		events <- progress.Event{Kind: progress.EventFileDone, File: file.Idx}
		log.Info().Str("path", file.Path).Msg("file complete")
		pipeline.Drain(in)
	}

	if chunks.IsComplete() {
		finish()
		return nil
	}

	var tick <-chan time.Time
	if requestInterval > 0 {
		ticker := time.NewTicker(requestInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			next, missing := chunks.GetZero()
			if !missing {
				finish()
				return nil
			}
			if err := comm.Send(wire.FileChunkRequest{Idx: file.Idx, Chunk: next}); err != nil {
				log.Warn().Err(err).Uint64("chunk", next).Msg("chunk request dropped")
				continue
			}
			events <- progress.Event{Kind: progress.EventChunkRequested, File: file.Idx, Chunk: next}
		case d, ok := <-in:
			if !ok {
				return ErrStreamClosed
			}
			chunk, ok := d.Msg.(wire.FileChunk)
			if !ok || chunk.Idx != file.Idx {
				continue
			}
			if err := fsio.WriteChunk(path, uint64(file.ChunkSize), chunk.Chunk, chunk.Data); err != nil {
				log.Error().Err(err).Uint64("chunk", chunk.Chunk).Msg("chunk write failed")
				pipeline.Drain(in)
				return err
			}
			chunks.Set(chunk.Chunk, true)
			events <- progress.Event{
				Kind:  progress.EventChunkDownloaded,
				File:  file.Idx,
				Chunk: chunk.Chunk,
				Bytes: len(chunk.Data),
			}
			if chunks.IsComplete() {
				finish()
				return nil
			}
		}
	}
}
