package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// HashSize is the length of a file hash on the wire (SHA-256).
const HashSize = 32

// JoinReason is the verdict carried by a JoinResponse.
type JoinReason string

const (
	JoinAccepted  JoinReason = "Accepted"
	JoinWrongName JoinReason = "WrongName"
)

// DisconnectReason explains why a peer is leaving.
type DisconnectReason string

const DisconnectDone DisconnectReason = "Done"

// Message is the tagged union of everything that travels in a packet
// payload. Payloads are msgpack maps with a "type" discriminant and
// named per-variant fields, so any implementation that speaks msgpack
// can interoperate.
type Message interface {
	wireType() string
}

// Announce is broadcast by a server to advertise its presence. Port is
// where the server listens for return traffic; the IP is implied by the
// datagram source.
type Announce struct {
	Port uint16
}

// JoinQuery is unicast by a client to complete discovery.
type JoinQuery struct{}

// JoinResponse answers a JoinQuery.
type JoinResponse struct {
	Reason JoinReason
}

// Ping carries a liveness nonce plus the count of packets the sender
// has received from the addressed peer since its previous Ping. The
// receive count drives the server's rate adaptation.
type Ping struct {
	Nonce uint64
	Recvs uint64
}

// Pong echoes a Ping nonce.
type Pong struct {
	Nonce uint64
}

// FileListingFragment describes one file in the shared directory.
// Across one server session every fragment carries the same Total and
// the Idx values cover [0, Total) exactly once.
type FileListingFragment struct {
	Idx       uint32
	Total     uint32
	Path      string
	Size      uint64
	Hash      [HashSize]byte
	ChunkSize uint16
}

// NumChunks returns how many chunks the described file splits into.
func (f FileListingFragment) NumChunks() uint64 {
	if f.ChunkSize == 0 {
		return 0
	}
	cs := uint64(f.ChunkSize)
	return (f.Size + cs - 1) / cs
}

// FileListing carries one listing fragment.
type FileListing struct {
	FileListingFragment
}

// FileListingRequest asks the server to resend fragment Idx.
type FileListingRequest struct {
	Idx uint32
}

// FileChunkRequest asks the server to resend one chunk of file Idx.
type FileChunkRequest struct {
	Idx   uint32
	Chunk uint64
}

// FileChunkData is a slice of a file: Data sits at offset
// Chunk*ChunkSize of file Idx.
type FileChunkData struct {
	Idx   uint32
	Chunk uint64
	Data  []byte
}

// FileChunk carries one chunk of a file.
type FileChunk struct {
	FileChunkData
}

// Disconnect tells the server this client is gone.
type Disconnect struct {
	Reason DisconnectReason
}

func (Announce) wireType() string           { return "Announce" }
func (JoinQuery) wireType() string          { return "JoinQuery" }
func (JoinResponse) wireType() string       { return "JoinResponse" }
func (Ping) wireType() string               { return "Ping" }
func (Pong) wireType() string               { return "Pong" }
func (FileListing) wireType() string        { return "FileListing" }
func (FileListingRequest) wireType() string { return "FileListingRequest" }
func (FileChunkRequest) wireType() string   { return "FileChunkRequest" }
func (FileChunk) wireType() string          { return "FileChunk" }
func (Disconnect) wireType() string         { return "Disconnect" }

// envelope is the superset of all variant fields, used on decode.
type envelope struct {
	Type      string `msgpack:"type"`
	Port      uint16 `msgpack:"port"`
	Reason    string `msgpack:"reason"`
	Nonce     uint64 `msgpack:"nonce"`
	Recvs     uint64 `msgpack:"recvs"`
	Idx       uint32 `msgpack:"idx"`
	Total     uint32 `msgpack:"total"`
	Path      string `msgpack:"path"`
	Size      uint64 `msgpack:"size"`
	Hash      []byte `msgpack:"hash"`
	ChunkSize uint16 `msgpack:"chunk_size"`
	Chunk     uint64 `msgpack:"chunk"`
	Data      []byte `msgpack:"data"`
}

// MarshalMessage serializes a message to its msgpack payload form.
func MarshalMessage(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Announce:
		return msgpack.Marshal(struct {
			Type string `msgpack:"type"`
			Port uint16 `msgpack:"port"`
		}{v.wireType(), v.Port})
	case JoinQuery:
		return msgpack.Marshal(struct {
			Type string `msgpack:"type"`
		}{v.wireType()})
	case JoinResponse:
		return msgpack.Marshal(struct {
			Type   string `msgpack:"type"`
			Reason string `msgpack:"reason"`
		}{v.wireType(), string(v.Reason)})
	case Ping:
		return msgpack.Marshal(struct {
			Type  string `msgpack:"type"`
			Nonce uint64 `msgpack:"nonce"`
			Recvs uint64 `msgpack:"recvs"`
		}{v.wireType(), v.Nonce, v.Recvs})
	case Pong:
		return msgpack.Marshal(struct {
			Type  string `msgpack:"type"`
			Nonce uint64 `msgpack:"nonce"`
		}{v.wireType(), v.Nonce})
	case FileListing:
		return msgpack.Marshal(struct {
			Type      string `msgpack:"type"`
			Idx       uint32 `msgpack:"idx"`
			Total     uint32 `msgpack:"total"`
			Path      string `msgpack:"path"`
			Size      uint64 `msgpack:"size"`
			Hash      []byte `msgpack:"hash"`
			ChunkSize uint16 `msgpack:"chunk_size"`
		}{v.wireType(), v.Idx, v.Total, v.Path, v.Size, v.Hash[:], v.ChunkSize})
	case FileListingRequest:
		return msgpack.Marshal(struct {
			Type string `msgpack:"type"`
			Idx  uint32 `msgpack:"idx"`
		}{v.wireType(), v.Idx})
	case FileChunkRequest:
		return msgpack.Marshal(struct {
			Type  string `msgpack:"type"`
			Idx   uint32 `msgpack:"idx"`
			Chunk uint64 `msgpack:"chunk"`
		}{v.wireType(), v.Idx, v.Chunk})
	case FileChunk:
		return msgpack.Marshal(struct {
			Type  string `msgpack:"type"`
			Idx   uint32 `msgpack:"idx"`
			Chunk uint64 `msgpack:"chunk"`
			Data  []byte `msgpack:"data"`
		}{v.wireType(), v.Idx, v.Chunk, v.Data})
	case Disconnect:
		return msgpack.Marshal(struct {
			Type   string `msgpack:"type"`
			Reason string `msgpack:"reason"`
		}{v.wireType(), string(v.Reason)})
	default:
		return nil, fmt.Errorf("unknown message type %T", m)
	}
}

// UnmarshalMessage parses a msgpack payload back into a typed message.
func UnmarshalMessage(data []byte) (Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case "Announce":
		return Announce{Port: env.Port}, nil
	case "JoinQuery":
		return JoinQuery{}, nil
	case "JoinResponse":
		return JoinResponse{Reason: JoinReason(env.Reason)}, nil
	case "Ping":
		return Ping{Nonce: env.Nonce, Recvs: env.Recvs}, nil
	case "Pong":
		return Pong{Nonce: env.Nonce}, nil
	case "FileListing":
		if len(env.Hash) != HashSize {
			return nil, fmt.Errorf("file listing hash is %d bytes, want %d", len(env.Hash), HashSize)
		}
		f := FileListingFragment{
			Idx:       env.Idx,
			Total:     env.Total,
			Path:      env.Path,
			Size:      env.Size,
			ChunkSize: env.ChunkSize,
		}
		copy(f.Hash[:], env.Hash)
		return FileListing{f}, nil
	case "FileListingRequest":
		return FileListingRequest{Idx: env.Idx}, nil
	case "FileChunkRequest":
		return FileChunkRequest{Idx: env.Idx, Chunk: env.Chunk}, nil
	case "FileChunk":
		return FileChunk{FileChunkData{Idx: env.Idx, Chunk: env.Chunk, Data: env.Data}}, nil
	case "Disconnect":
		return Disconnect{Reason: DisconnectReason(env.Reason)}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}
