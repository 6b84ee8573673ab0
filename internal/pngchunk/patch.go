package pngchunk

import (
	"errors"
	"fmt"
	"io"
)

// PatchDensity copies a PNG from r to w, replacing its pHYs chunk with one
// declaring ppi pixels per inch on both axes.
//
// The new chunk is written immediately after IHDR so it always precedes
// IDAT. Existing pHYs chunks are dropped. If the stream reaches IEND without
// an IHDR, the chunk is written just before IEND instead. All other chunks
// are copied byte for byte. Nothing is buffered beyond one chunk header.
//
// A stream that ends before IEND, including one that ends cleanly on a chunk
// boundary, fails with io.ErrUnexpectedEOF.
func PatchDensity(r io.Reader, w io.Writer, ppi int) error {
	if ppi <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDensity, ppi)
	}
	if err := readSignature(r); err != nil {
		return err
	}
	if _, err := w.Write(Signature[:]); err != nil {
		return err
	}

	phys := BuildPhys(PixelsPerMeter(ppi))
	emitted := false
	emit := func() error {
		if emitted {
			return nil
		}
		emitted = true
		_, err := w.Write(phys[:])
		return err
	}

	var hdr [chunkHeaderLen]byte
	for {
		length, typ, err := readHeader(r, &hdr)
		if err != nil {
			return eofAsUnexpected(err)
		}

		switch typ {
		case TypePHYs:
			if err := skipBody(r, length); err != nil {
				return err
			}
		case TypeIHDR:
			if err := copyChunk(w, r, hdr[:], length); err != nil {
				return err
			}
			if err := emit(); err != nil {
				return err
			}
		case TypeIEND:
			if err := emit(); err != nil {
				return err
			}
			return copyChunk(w, r, hdr[:], length)
		default:
			if err := copyChunk(w, r, hdr[:], length); err != nil {
				return err
			}
		}
	}
}

// copyChunk writes an already read header followed by exactly length bytes
// of payload and the 4-byte CRC.
func copyChunk(w io.Writer, r io.Reader, hdr []byte, length uint32) error {
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := io.CopyN(w, r, int64(length)+4)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func skipBody(r io.Reader, length uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(length)+4)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
