// Package persistence saves and loads chunk edit ledgers.
package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"terrainbakery/internal/world"
)

// ErrCorrupt reports a ledger payload that does not decode.
var ErrCorrupt = errors.New("persistence: corrupt ledger")

// MarshalLedger lays a ledger out little endian as a uint32 count, the sorted
// int32 indices, then the float32 bits of each value.
func MarshalLedger(l world.Ledger) []byte {
	pairs := l.Pairs()
	out := make([]byte, 0, 4+8*len(pairs))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pairs)))
	for _, p := range pairs {
		out = binary.LittleEndian.AppendUint32(out, uint32(p.Index))
	}
	for _, p := range pairs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(p.Value))
	}
	return out
}

// UnmarshalLedger reverses MarshalLedger bit for bit.
func UnmarshalLedger(b []byte) (world.Ledger, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d byte header", ErrCorrupt, len(b))
	}
	n := int(binary.LittleEndian.Uint32(b))
	if len(b) != 4+8*n {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrCorrupt, n, len(b))
	}
	indices := b[4 : 4+4*n]
	values := b[4+4*n:]
	pairs := make([]world.Pair, n)
	for i := range pairs {
		pairs[i] = world.Pair{
			Index: int32(binary.LittleEndian.Uint32(indices[4*i:])),
			Value: math.Float32frombits(binary.LittleEndian.Uint32(values[4*i:])),
		}
	}
	return world.FromPairs(pairs), nil
}

// Codec compresses marshalled ledgers with zstd. It is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode marshals and compresses l.
func (c *Codec) Encode(l world.Ledger) []byte {
	return c.enc.EncodeAll(MarshalLedger(l), nil)
}

// Decode decompresses and unmarshals b.
func (c *Codec) Decode(b []byte) (world.Ledger, error) {
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return UnmarshalLedger(raw)
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}
