package wire

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func sampleMessages() []Message {
	var hash [HashSize]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	return []Message{
		Announce{Port: 1337},
		JoinQuery{},
		JoinResponse{Reason: JoinAccepted},
		JoinResponse{Reason: JoinWrongName},
		Ping{Nonce: 42, Recvs: 17},
		Pong{Nonce: 42},
		FileListing{FileListingFragment{
			Idx: 1, Total: 3, Path: "dir/a.bin", Size: 1000, Hash: hash, ChunkSize: 512,
		}},
		FileListingRequest{Idx: 2},
		FileChunkRequest{Idx: 0, Chunk: 9},
		FileChunk{FileChunkData{Idx: 0, Chunk: 9, Data: []byte{1, 2, 3}}},
		Disconnect{Reason: DisconnectDone},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, m := range sampleMessages() {
		pkt, err := Encode("three-word-name", m)
		if err != nil {
			t.Fatalf("Encode(%#v) failed: %v", m, err)
		}
		name, got, err := Decode(pkt)
		if err != nil {
			t.Fatalf("Decode of %#v failed: %v", m, err)
		}
		if name != "three-word-name" {
			t.Errorf("decoded name %q, want %q", name, "three-word-name")
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("round trip of %#v gave %#v", m, got)
		}
	}
}

func TestDecodeShortRandomNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		buf := make([]byte, rng.Intn(16))
		rng.Read(buf)
		if _, m, err := Decode(buf); err == nil {
			t.Fatalf("random %d-byte input decoded to %#v", len(buf), m)
		}
	}
}

func TestDecodeForeignMagic(t *testing.T) {
	_, _, err := Decode([]byte("NotOurP!whatever\x00junk"))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("foreign magic gave %v, want ErrInvalidMagic", err)
	}

	// A valid prefix with no name terminator is also not ours.
	_, _, err = Decode([]byte("RustUDPsname-without-terminator"))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("missing terminator gave %v, want ErrInvalidMagic", err)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	pkt, err := Encode("peer", Pong{Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	// The version field sits right after the name terminator.
	off := len("RustUDPs") + len("peer") + 1
	binary.BigEndian.PutUint16(pkt[off:], 2)

	_, _, err = Decode(pkt)
	var ve VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("version 2 gave %v, want VersionError", err)
	}
	if ve.Got != 2 {
		t.Errorf("VersionError.Got = %d, want 2", ve.Got)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	pkt, err := Encode("peer", Pong{Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = Decode(pkt[:len(pkt)-1])
	var le LengthError
	if !errors.As(err, &le) {
		t.Fatalf("truncated payload gave %v, want LengthError", err)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	pkt, err := Encode("peer", Pong{Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	pkt[len(pkt)-1] ^= 0xFF
	if _, _, err := Decode(pkt); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupted payload gave %v, want ErrChecksumMismatch", err)
	}
}

func TestEncodeRejectsNulName(t *testing.T) {
	if _, err := Encode("bad\x00name", Pong{Nonce: 1}); err == nil {
		t.Error("expected an error for a name containing NUL")
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := FileChunk{FileChunkData{Data: make([]byte, MaxPayload+1)}}
	if _, err := Encode("peer", big); err == nil {
		t.Error("expected an error for an oversized payload")
	}
}

func TestChecksumKnownAnswer(t *testing.T) {
	// CRC-32/CKSUM check value for the standard test vector.
	if got := Checksum([]byte("123456789")); got != 0x765E7680 {
		t.Errorf("Checksum(123456789) = %#x, want 0x765e7680", got)
	}
	if got := Checksum(nil); got != 0xFFFFFFFF {
		t.Errorf("Checksum(empty) = %#x, want 0xffffffff", got)
	}
}
