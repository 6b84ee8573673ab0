package imaging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	jseg "github.com/garyhouston/jpegsegs"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	markerAPP0 = jseg.Marker(0xE0)
	markerAPP1 = jseg.Marker(0xE1)

	// maxSegmentData is the largest payload a JPEG marker segment can carry.
	maxSegmentData = math.MaxUint16 - 2
)

var (
	exifHeader = []byte("Exif\x00\x00")
	jfifHeader = []byte("JFIF\x00")

	// ErrDensityOutOfRange is returned for densities JFIF cannot store.
	ErrDensityOutOfRange = errors.New("density out of range for JPEG")
	// ErrNoDensity is returned when a JPEG carries no resolution tags.
	ErrNoDensity = errors.New("no resolution metadata")
)

// SetJPEGDensity copies a JPEG from r to w with its resolution metadata set
// to ppi pixels per inch. Only the APP0 and APP1 segments are rewritten; the
// compressed scan data and anything after it are copied through untouched.
func SetJPEGDensity(r io.Reader, w io.Writer, ppi int) error {
	if ppi < 1 || ppi > math.MaxUint16 {
		return fmt.Errorf("%w: %d", ErrDensityOutOfRange, ppi)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read JPEG: %w", err)
	}
	reader := bytes.NewReader(data)

	scanner, err := jseg.NewScanner(reader)
	if err != nil {
		return fmt.Errorf("failed to read JPEG segments: %w", err)
	}
	segments, err := jseg.ReadSegments(scanner)
	if err != nil {
		return fmt.Errorf("failed to read JPEG segments: %w", err)
	}

	segments, err = setSegmentDensity(segments, uint32(ppi))
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(w)
	dumper, err := jseg.NewDumper(writer)
	if err != nil {
		return fmt.Errorf("failed to write JPEG segments: %w", err)
	}
	if err := jseg.WriteSegments(dumper, segments); err != nil {
		return fmt.Errorf("failed to write JPEG segments: %w", err)
	}
	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("failed to copy JPEG scan data: %w", err)
	}
	return writer.Flush()
}

func setSegmentDensity(segments []jseg.Segment, ppi uint32) ([]jseg.Segment, error) {
	hasExif := false
	for i := range segments {
		seg := &segments[i]
		switch seg.Marker {
		case markerAPP0:
			if !bytes.HasPrefix(seg.Data, jfifHeader) || len(seg.Data) < 12 {
				continue
			}
			data := append([]byte(nil), seg.Data...)
			data[7] = 1
			binary.BigEndian.PutUint16(data[8:10], uint16(ppi))
			binary.BigEndian.PutUint16(data[10:12], uint16(ppi))
			seg.Data = data
		case markerAPP1:
			if hasExif || !bytes.HasPrefix(seg.Data, exifHeader) {
				continue
			}
			tiff, err := setTIFFResolution(seg.Data[len(exifHeader):], ppi)
			if err != nil {
				return nil, fmt.Errorf("failed to update EXIF resolution: %w", err)
			}
			data, err := exifPayload(tiff)
			if err != nil {
				return nil, err
			}
			seg.Data = data
			hasExif = true
		}
	}
	if hasExif {
		return segments, nil
	}

	data, err := exifPayload(minimalTIFF(ppi))
	if err != nil {
		return nil, err
	}

	at := 0
	for at < len(segments) && segments[at].Marker == markerAPP0 {
		at++
	}
	out := make([]jseg.Segment, 0, len(segments)+1)
	out = append(out, segments[:at]...)
	out = append(out, jseg.Segment{Marker: markerAPP1, Data: data})
	return append(out, segments[at:]...), nil
}

func exifPayload(tiff []byte) ([]byte, error) {
	if len(exifHeader)+len(tiff) > maxSegmentData {
		return nil, fmt.Errorf("EXIF block of %d bytes exceeds one APP1 segment", len(tiff))
	}
	data := make([]byte, 0, len(exifHeader)+len(tiff))
	data = append(data, exifHeader...)
	return append(data, tiff...), nil
}

// ReadJPEGDensity returns the horizontal EXIF resolution in pixels per inch.
func ReadJPEGDensity(data []byte) (int, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoDensity, err)
	}

	tag, err := x.Get(exif.XResolution)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoDensity, err)
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return 0, fmt.Errorf("failed to read XResolution: %w", err)
	}
	if den == 0 {
		return 0, fmt.Errorf("%w: zero denominator", ErrNoDensity)
	}
	value := float64(num) / float64(den)

	// Centimetres when ResolutionUnit is 3; inches otherwise.
	if unitTag, err := x.Get(exif.ResolutionUnit); err == nil {
		if unit, err := unitTag.Int(0); err == nil && unit == 3 {
			value *= 2.54
		}
	}
	return int(math.Round(value)), nil
}
