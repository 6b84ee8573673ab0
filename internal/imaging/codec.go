// Package imaging wraps the image codecs used by the batch transforms:
// format detection, full decode/encode, lossless JPEG resolution tags and
// the transform dispatch that picks the cheapest path per file.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/webp" // Import for webp decoding support
)

// Format names a recognised encoded image format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ErrUnsupportedFormat is returned for data that is not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Info holds the header-level properties of an encoded image.
type Info struct {
	Width  int
	Height int
	Format Format
}

// Processor is the codec capability boundary. It never touches the
// filesystem.
type Processor struct {
	jpegQuality    int
	pngCompression png.CompressionLevel
}

// NewProcessor creates a new processor
func NewProcessor(jpegQuality int) *Processor {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}

	return &Processor{
		jpegQuality:    jpegQuality,
		pngCompression: png.DefaultCompression,
	}
}

// Identify reads the image header only.
func (p *Processor) Identify(data []byte) (*Info, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("failed to decode image config: %w", err)
	}

	format, err := parseFormat(name)
	if err != nil {
		return nil, err
	}

	return &Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}

// DetectFormat returns the true format of data regardless of its file name.
func (p *Processor) DetectFormat(data []byte) (Format, error) {
	info, err := p.Identify(data)
	if err != nil {
		return "", err
	}
	return info.Format, nil
}

// Decode fully decodes data.
func (p *Processor) Decode(data []byte) (image.Image, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	format, err := parseFormat(name)
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// Encode writes img to w in the given format. WebP is decode-only.
func (p *Processor) Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		encoder := &png.Encoder{CompressionLevel: p.pngCompression}
		err = encoder.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: p.jpegQuality})
	default:
		return fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

// SupportedFormats returns the formats the processor can decode.
func (p *Processor) SupportedFormats() []Format {
	return []Format{FormatJPEG, FormatPNG, FormatWebP}
}

func parseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatJPEG, FormatPNG, FormatWebP:
		return Format(name), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}
