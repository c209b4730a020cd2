// Package persistence implements the Snapshot Codec: bit-exact
// binary round-tripping of engine state to the three per-tenant files
// `{tenant}.bin`, `{tenant}_lexicon.bin`, `{tenant}_aliases.bin`.
//
// A fixed magic+version+checksum header precedes a msgpack-encoded
// payload, gzip-compressed whenever compression actually shrinks it. The
// payload is CueMap's {memories, cue_index, co_occurrence} triple (or
// {lexicon rows, cue_index, co_occurrence} for the lexicon file).
package persistence

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

// MagicBytes identifies a CueMap snapshot file; every emitted file
// starts with the magic bytes followed by a u16 version.
const MagicBytes = "CMAP"

// FormatVersion is the current snapshot format version.
const FormatVersion uint16 = 1

// FlagCompressed marks a gzip-compressed payload, set only when
// compression actually shrinks the data.
const FlagCompressed uint16 = 1 << 0

// Header is the fixed-size prefix of every snapshot file.
type Header struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	DataLen  uint64
	Checksum uint32
}

// EngineSnapshot is the serializable shape of one per-tenant engine's
// state: every memory, the full cue index ordering, and the co-occurrence
// matrix. Cues is a cue -> ordered memory-ID list so decode can rebuild an
// exact cueindex.Index without replaying every Add call out of order.
type EngineSnapshot struct {
	Memories []*core.Memory                `msgpack:"memories"`
	CueOrder map[string][]core.MemoryID    `msgpack:"cue_order"`
	Cooccur  map[string]map[string]uint32  `msgpack:"cooccur"`
	Aliases  map[string][]AliasEdge        `msgpack:"aliases,omitempty"`
}

// AliasEdge mirrors alias.Edge without importing pkg/alias, keeping
// persistence a leaf package with no dependency on the engines it
// serializes.
type AliasEdge struct {
	To     string  `msgpack:"to"`
	Weight float64 `msgpack:"weight"`
}

// Codec encodes/decodes EngineSnapshot values to the binary file format.
type Codec struct {
	compress  bool
	compLevel int
}

// NewCodec builds a Codec. compress enables opportunistic gzip.
func NewCodec(compress bool) *Codec {
	return &Codec{compress: compress, compLevel: gzip.BestSpeed}
}

// Encode serializes snap to the binary format.
func (c *Codec) Encode(snap *EngineSnapshot) ([]byte, error) {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, err
	}

	var flags uint16
	if c.compress {
		compressed, err := c.compressData(data)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(data) {
			data = compressed
			flags |= FlagCompressed
		}
	}

	header := Header{
		Version:  FormatVersion,
		Flags:    flags,
		DataLen:  uint64(len(data)),
		Checksum: c.checksum(data),
	}
	copy(header.Magic[:], MagicBytes)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if _, err := buf.Write(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes raw bytes back into an EngineSnapshot, verifying the
// magic, version, and checksum along the way.
func (c *Codec) Decode(raw []byte) (*EngineSnapshot, error) {
	if len(raw) < 20 {
		return nil, core.ErrPersistence
	}

	buf := bytes.NewReader(raw)
	var header Header
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, core.ErrPersistence
	}
	if string(header.Magic[:]) != MagicBytes {
		return nil, core.ErrPersistence
	}
	if header.Version > FormatVersion {
		return nil, core.ErrPersistence
	}

	data := make([]byte, header.DataLen)
	if _, err := io.ReadFull(buf, data); err != nil {
		return nil, core.ErrPersistence
	}
	if c.checksum(data) != header.Checksum {
		return nil, core.ErrPersistence
	}

	if header.Flags&FlagCompressed != 0 {
		decompressed, err := c.decompressData(data)
		if err != nil {
			return nil, core.ErrPersistence
		}
		data = decompressed
	}

	var snap EngineSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, core.ErrPersistence
	}
	return &snap, nil
}

func (c *Codec) compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.compLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) decompressData(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// checksum is a simple multiplicative rolling checksum: fast,
// dependency-free, not a cryptographic integrity check.
func (c *Codec) checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum = sum*31 + uint32(b)
	}
	return sum
}
