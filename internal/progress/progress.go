// Package progress renders the client's download state: one row per
// file with a superblock bar, under a header showing recent
// throughput. Chunks are grouped 62 to a glyph so even large files fit
// a terminal row.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// EventKind discriminates progress events.
type EventKind int

const (
	// EventChunkDownloaded marks a chunk as written to disk.
	EventChunkDownloaded EventKind = iota
	// EventChunkRequested marks a chunk as asked for.
	EventChunkRequested
	// EventFileDone marks a whole file as reconstructed.
	EventFileDone
)

// Event is one progress update from a download task.
type Event struct {
	Kind  EventKind
	File  uint32
	Chunk uint64
	Bytes int
}

// SuperblockSize is how many chunks one bar glyph summarizes.
const SuperblockSize = 62

// throughputWindow is how many seconds of history the header averages.
const throughputWindow = 5

const maxNameLen = 20

type fileRow struct {
	name   string
	groups []int
	sizes  []int
	seen   []uint64
	done   bool
}

// Indicator consumes download events and paints the terminal. On a
// non-terminal writer it degrades to one line per completed file.
type Indicator struct {
	out   io.Writer
	tty   bool
	rows  []fileRow
	drawn bool

	buckets [throughputWindow]uint64
	bucket  int
}

// NewIndicator builds an indicator for the given files. numChunks must
// parallel names.
func NewIndicator(names []string, numChunks []uint64, out io.Writer) *Indicator {
	if out == nil {
		out = os.Stdout
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	rows := make([]fileRow, len(names))
	for i, name := range names {
		n := numChunks[i]
		groups := int((n + SuperblockSize - 1) / SuperblockSize)
		row := fileRow{
			name:   name,
			groups: make([]int, groups),
			sizes:  make([]int, groups),
			seen:   make([]uint64, (n+63)/64),
		}
		for g := 0; g < groups; g++ {
			row.sizes[g] = SuperblockSize
		}
		if groups > 0 {
			if tail := int(n % SuperblockSize); tail != 0 {
				row.sizes[groups-1] = tail
			}
		}
		rows[i] = row
	}
	return &Indicator{out: out, tty: tty, rows: rows}
}

// Run consumes events until every file is done or the stream closes.
func (p *Indicator) Run(events <-chan Event) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	p.render()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			p.apply(e)
			p.render()
			if p.allDone() {
				return
			}
		case <-ticker.C:
			p.rotate()
			p.render()
		}
	}
}

func (p *Indicator) apply(e Event) {
	if int(e.File) >= len(p.rows) {
		return
	}
	row := &p.rows[e.File]
	switch e.Kind {
	case EventChunkDownloaded:
		word := e.Chunk / 64
		if word >= uint64(len(row.seen)) {
			return
		}
		mask := uint64(1) << (e.Chunk % 64)
		if row.seen[word]&mask != 0 {
			return // duplicate chunk, already counted
		}
		row.seen[word] |= mask
		row.groups[e.Chunk/SuperblockSize]++
		p.buckets[p.bucket] += uint64(e.Bytes)
	case EventFileDone:
		if !row.done {
			row.done = true
			if !p.tty {
				fmt.Fprintf(p.out, "%s done\n", row.name)
			}
		}
	}
}

// rotate opens a new one-second throughput bucket.
func (p *Indicator) rotate() {
	p.bucket = (p.bucket + 1) % throughputWindow
	p.buckets[p.bucket] = 0
}

func (p *Indicator) allDone() bool {
	for _, row := range p.rows {
		if !row.done {
			return false
		}
	}
	return true
}

func (p *Indicator) throughput() uint64 {
	var sum uint64
	for _, b := range p.buckets {
		sum += b
	}
	return sum / throughputWindow
}

func (p *Indicator) render() {
	if !p.tty {
		return
	}
	if p.drawn {
		fmt.Fprintf(p.out, "\x1b[%dA", len(p.rows)+1)
	}
	p.drawn = true
	fmt.Fprintf(p.out, "\x1b[2K%s\r\n", p.headerLine())
	for i := range p.rows {
		fmt.Fprintf(p.out, "\x1b[2K%s\r\n", p.rowLine(i))
	}
}

func (p *Indicator) headerLine() string {
	return humanize.Bytes(p.throughput()) + "/s"
}

func (p *Indicator) rowLine(i int) string {
	row := &p.rows[i]
	name := row.name
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	var bar strings.Builder
	for g, count := range row.groups {
		bar.WriteByte(glyph(count, row.sizes[g]))
	}
	if row.done {
		return fmt.Sprintf("%s: [%s] done", name, bar.String())
	}
	return fmt.Sprintf("%s: [%s]", name, bar.String())
}

// glyph encodes how many chunks of a superblock have landed: digits,
// then lowercase, then uppercase, and X once the group is complete.
func glyph(count, size int) byte {
	if size > 0 && count >= size {
		return 'X'
	}
	switch {
	case count < 10:
		return byte('0' + count)
	case count < 36:
		return byte('a' + count - 10)
	case count < 62:
		return byte('A' + count - 36)
	default:
		return 'X'
	}
}
