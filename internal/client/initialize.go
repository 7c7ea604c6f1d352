package client

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/netio"
	"lancast/internal/wire"
)

// listingRetry is the cadence of listing (re)requests during
// initialization.
const listingRetry = 500 * time.Millisecond

// listingAttempts bounds how often the client asks for fragment 0
// before giving up on the server.
const listingAttempts = 10

// listingBatch caps how many missing fragments one retry tick requests.
const listingBatch = 50

// ErrNoListing is returned when the server never answers the first
// listing request.
var ErrNoListing = errors.New("no file listing after repeated requests")

// InitializeState acquires the complete file listing. It first learns
// the fragment count by requesting fragment 0, then fills every slot,
// re-requesting missing ones in batches until none are empty.
func InitializeState(in <-chan netio.Datagram, comm ServerComm, log zerolog.Logger) (ServerData, error) {
	ticker := time.NewTicker(listingRetry)
	defer ticker.Stop()

	first, err := learnTotal(in, ticker.C, comm, log)
	if err != nil {
		return ServerData{}, err
	}
	total := first.Total
	log.Info().Uint32("total", total).Msg("learned file count")

	slots := make([]*wire.FileListingFragment, total)
	record := func(f wire.FileListingFragment) {
		if f.Idx < total && slots[f.Idx] == nil {
			frag := f
			slots[f.Idx] = &frag
			log.Debug().Uint32("idx", f.Idx).Str("path", f.Path).Msg("listing fragment stored")
		}
	}
	record(first.FileListingFragment)

	for !allFilled(slots) {
		select {
		case <-ticker.C:
			requested := 0
			for i, slot := range slots {
				if slot != nil {
					continue
				}
				if err := comm.Send(wire.FileListingRequest{Idx: uint32(i)}); err != nil {
					log.Warn().Err(err).Int("idx", i).Msg("listing request dropped")
				}
				requested++
				if requested >= listingBatch {
					break
				}
			}
		case d, ok := <-in:
			if !ok {
				return ServerData{}, ErrStreamClosed
			}
			if listing, ok := d.Msg.(wire.FileListing); ok {
				record(listing.FileListingFragment)
			}
		}
	}

	data := ServerData{Files: make([]FileState, total)}
	for i, slot := range slots {
		data.Files[i] = FileState{
			Fragment: *slot,
			Chunks:   ChunkStateFromFileSize(slot.Size, slot.ChunkSize),
		}
	}
	log.Info().Int("files", len(data.Files)).Msg("listing complete")
	return data, nil
}

// learnTotal requests fragment 0 on every tick until any fragment
// arrives; its total fixes the listing size.
func learnTotal(in <-chan netio.Datagram, tick <-chan time.Time, comm ServerComm, log zerolog.Logger) (wire.FileListing, error) {
	attempts := 1
	if err := comm.Send(wire.FileListingRequest{Idx: 0}); err != nil {
		log.Warn().Err(err).Msg("listing request dropped")
	}
	for {
		select {
		case <-tick:
			attempts++
			if attempts > listingAttempts {
				return wire.FileListing{}, ErrNoListing
			}
			log.Debug().Int("attempt", attempts).Msg("requesting fragment 0 for the file count")
			if err := comm.Send(wire.FileListingRequest{Idx: 0}); err != nil {
				log.Warn().Err(err).Msg("listing request dropped")
			}
		case d, ok := <-in:
			if !ok {
				return wire.FileListing{}, ErrStreamClosed
			}
			if listing, ok := d.Msg.(wire.FileListing); ok {
				return listing, nil
			}
		}
	}
}

func allFilled(slots []*wire.FileListingFragment) bool {
	for _, slot := range slots {
		if slot == nil {
			return false
		}
	}
	return true
}
