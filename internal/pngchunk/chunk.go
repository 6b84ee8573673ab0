// Package pngchunk edits PNG files at the chunk level without decoding pixel
// data. It rewrites the pHYs (physical pixel dimensions) chunk in a single
// streaming pass and can read it back for verification.
package pngchunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Signature is the fixed 8-byte PNG file signature.
var Signature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	TypeIHDR = "IHDR"
	TypePHYs = "pHYs"
	TypeIDAT = "IDAT"
	TypeIEND = "IEND"

	// UnitMeter is the pHYs unit specifier for pixels per metre.
	UnitMeter = 1

	physDataLen = 9
	// PhysChunkLen is the encoded size of a pHYs chunk: length, type, data, CRC.
	PhysChunkLen = 4 + 4 + physDataLen + 4

	maxChunkLen    = 1<<31 - 1
	metersPerInch  = 0.0254
	chunkHeaderLen = 8
)

var (
	ErrInvalidSignature = errors.New("invalid PNG signature")
	ErrChunkTooLarge    = errors.New("PNG chunk length exceeds 2^31-1")
	ErrInvalidDensity   = errors.New("density must be a positive number of pixels per inch")
	ErrChecksumMismatch = errors.New("PNG chunk CRC mismatch")
)

// Chunk is one decoded PNG chunk.
type Chunk struct {
	Type string
	Data []byte
	CRC  uint32
}

// Valid reports whether the stored CRC matches the type and data.
func (c Chunk) Valid() bool {
	return c.CRC == checksum([]byte(c.Type), c.Data)
}

// Density is the content of a pHYs chunk.
type Density struct {
	X    uint32
	Y    uint32
	Unit uint8
}

// PPI converts the horizontal density to pixels per inch. It returns 0 when
// the unit is not metres.
func (d Density) PPI() int {
	if d.Unit != UnitMeter {
		return 0
	}
	return int(math.Round(float64(d.X) * metersPerInch))
}

// PixelsPerMeter converts a pixels-per-inch value to pixels per metre,
// rounding to the nearest integer.
func PixelsPerMeter(ppi int) uint32 {
	return uint32(math.Round(float64(ppi) / metersPerInch))
}

// BuildPhys encodes a complete pHYs chunk with equal X and Y densities and
// the metre unit.
func BuildPhys(ppm uint32) [PhysChunkLen]byte {
	var out [PhysChunkLen]byte
	binary.BigEndian.PutUint32(out[0:4], physDataLen)
	copy(out[4:8], TypePHYs)
	binary.BigEndian.PutUint32(out[8:12], ppm)
	binary.BigEndian.PutUint32(out[12:16], ppm)
	out[16] = UnitMeter
	binary.BigEndian.PutUint32(out[17:21], crc32.ChecksumIEEE(out[4:17]))
	return out
}

func checksum(typ, data []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(typ)
	h.Write(data)
	return h.Sum32()
}

func readSignature(r io.Reader) error {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if sig != Signature {
		return ErrInvalidSignature
	}
	return nil
}

// readHeader reads a chunk length and type. io.EOF is returned unchanged when
// the stream ends exactly on a chunk boundary.
func readHeader(r io.Reader, hdr *[chunkHeaderLen]byte) (uint32, string, error) {
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, "", err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	if length > maxChunkLen {
		return 0, "", ErrChunkTooLarge
	}
	return length, string(hdr[4:8]), nil
}

// ReadChunks decodes every chunk up to and including IEND. CRCs are returned
// as stored and not verified.
func ReadChunks(r io.Reader) ([]Chunk, error) {
	if err := readSignature(r); err != nil {
		return nil, err
	}

	var (
		chunks []Chunk
		hdr    [chunkHeaderLen]byte
		crc    [4]byte
	)
	for {
		length, typ, err := readHeader(r, &hdr)
		if err != nil {
			return chunks, eofAsUnexpected(err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return chunks, eofAsUnexpected(err)
		}
		if _, err := io.ReadFull(r, crc[:]); err != nil {
			return chunks, eofAsUnexpected(err)
		}
		chunks = append(chunks, Chunk{Type: typ, Data: data, CRC: binary.BigEndian.Uint32(crc[:])})
		if typ == TypeIEND {
			return chunks, nil
		}
	}
}

// ReadDensity returns the first pHYs chunk of a PNG stream. The boolean is
// false when the file has none.
func ReadDensity(r io.Reader) (Density, bool, error) {
	chunks, err := ReadChunks(r)
	if err != nil {
		return Density{}, false, err
	}
	for _, c := range chunks {
		if c.Type != TypePHYs {
			continue
		}
		if len(c.Data) != physDataLen {
			return Density{}, false, fmt.Errorf("malformed pHYs chunk of %d bytes", len(c.Data))
		}
		if !c.Valid() {
			return Density{}, false, ErrChecksumMismatch
		}
		return Density{
			X:    binary.BigEndian.Uint32(c.Data[0:4]),
			Y:    binary.BigEndian.Uint32(c.Data[4:8]),
			Unit: c.Data[8],
		}, true, nil
	}
	return Density{}, false, nil
}

// ReadDensityBytes is ReadDensity over an in-memory file.
func ReadDensityBytes(data []byte) (Density, bool, error) {
	return ReadDensity(bytes.NewReader(data))
}

func eofAsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
