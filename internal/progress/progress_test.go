package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestGlyphEncoding(t *testing.T) {
	cases := []struct {
		count, size int
		want        byte
	}{
		{0, 62, '0'},
		{9, 62, '9'},
		{10, 62, 'a'},
		{35, 62, 'z'},
		{36, 62, 'A'},
		{61, 62, 'Z'},
		{62, 62, 'X'},
		{5, 5, 'X'}, // a short tail group is X once complete
		{4, 5, '4'},
	}
	for _, c := range cases {
		if got := glyph(c.count, c.size); got != c.want {
			t.Errorf("glyph(%d, %d) = %q, want %q", c.count, c.size, got, c.want)
		}
	}
}

func TestRowSuperblocks(t *testing.T) {
	// 100 chunks: one full group of 62 and a tail of 38.
	p := NewIndicator([]string{"big.bin"}, []uint64{100}, &bytes.Buffer{})
	row := p.rows[0]
	if len(row.groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(row.groups))
	}
	if row.sizes[0] != 62 || row.sizes[1] != 38 {
		t.Errorf("group sizes = %v, want [62 38]", row.sizes)
	}

	for chunk := uint64(0); chunk < 62; chunk++ {
		p.apply(Event{Kind: EventChunkDownloaded, File: 0, Chunk: chunk, Bytes: 512})
	}
	p.apply(Event{Kind: EventChunkDownloaded, File: 0, Chunk: 70, Bytes: 512})

	line := p.rowLine(0)
	if !strings.Contains(line, "[X1]") {
		t.Errorf("row = %q, want bar [X1]", line)
	}
}

func TestDuplicateChunksCountOnce(t *testing.T) {
	p := NewIndicator([]string{"f"}, []uint64{10}, &bytes.Buffer{})
	for i := 0; i < 5; i++ {
		p.apply(Event{Kind: EventChunkDownloaded, File: 0, Chunk: 3, Bytes: 100})
	}
	if got := p.rows[0].groups[0]; got != 1 {
		t.Errorf("group count = %d after duplicates, want 1", got)
	}
	if got := p.buckets[p.bucket]; got != 100 {
		t.Errorf("bucket = %d, want only the first chunk's 100 bytes", got)
	}
}

func TestThroughputIsFiveSecondAverage(t *testing.T) {
	p := NewIndicator([]string{"f"}, []uint64{1000}, &bytes.Buffer{})
	for i := uint64(0); i < 5; i++ {
		p.apply(Event{Kind: EventChunkDownloaded, File: 0, Chunk: i, Bytes: 1000})
		if i < 4 {
			p.rotate()
		}
	}
	if got := p.throughput(); got != 1000 {
		t.Errorf("throughput = %d, want 1000 (5000 bytes over 5 seconds)", got)
	}

	// Old buckets fall out of the window as it rotates.
	for i := 0; i < 5; i++ {
		p.rotate()
	}
	if got := p.throughput(); got != 0 {
		t.Errorf("throughput = %d after an idle window, want 0", got)
	}
}

func TestRunFinishesWhenAllFilesDone(t *testing.T) {
	var out bytes.Buffer
	p := NewIndicator([]string{"a", "b"}, []uint64{1, 1}, &out)

	events := make(chan Event, 4)
	events <- Event{Kind: EventChunkDownloaded, File: 0, Chunk: 0, Bytes: 10}
	events <- Event{Kind: EventFileDone, File: 0}
	events <- Event{Kind: EventChunkDownloaded, File: 1, Chunk: 0, Bytes: 10}
	events <- Event{Kind: EventFileDone, File: 1}

	done := make(chan struct{})
	go func() {
		p.Run(events)
		close(done)
	}()
	<-done

	// Non-terminal output degrades to completion lines.
	text := out.String()
	if !strings.Contains(text, "a done") || !strings.Contains(text, "b done") {
		t.Errorf("output = %q, want completion lines for both files", text)
	}
}

func TestNameTruncation(t *testing.T) {
	long := strings.Repeat("n", 40)
	p := NewIndicator([]string{long}, []uint64{1}, &bytes.Buffer{})
	line := p.rowLine(0)
	if strings.Contains(line, long) {
		t.Errorf("row %q should truncate the file name", line)
	}
	if !strings.HasPrefix(line, strings.Repeat("n", 20)+":") {
		t.Errorf("row %q should keep the first 20 characters", line)
	}
}
