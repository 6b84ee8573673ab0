package imaging

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rana-image-tool/internal/bufpool"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/pngchunk"
)

// DensityOptions selects the target resolution of SetDensity.
type DensityOptions struct {
	// PPI is the fixed density used when Linear is false.
	PPI int
	// Linear derives the density from the image width: floor(width/10).
	Linear bool
}

// TargetPPI returns the density to write for an image of the given width.
func TargetPPI(width int, opts DensityOptions) int {
	if opts.Linear {
		return width / 10
	}
	return opts.PPI
}

// ExtensionFor picks the output extension for a file with source extension
// srcExt that now holds data in the produced format. A source extension that
// already names the format is kept as written, in any letter case.
// Otherwise the canonical extension is returned and changed is true.
func ExtensionFor(srcExt string, produced Format) (ext string, changed bool) {
	lower := strings.ToLower(srcExt)
	switch produced {
	case FormatJPEG:
		if lower == ".jpg" || lower == ".jpeg" {
			return srcExt, false
		}
		return ".jpg", true
	case FormatPNG:
		if lower == ".png" {
			return srcExt, false
		}
		return ".png", true
	default:
		return "." + string(produced), lower != "."+string(produced)
	}
}

// Service implements the batch transforms on top of Processor.
type Service struct {
	codec  *Processor
	pool   *bufpool.Pool
	tracer trace.Tracer
}

// NewService creates the transform service. A nil tracer falls back to the
// global provider.
func NewService(codec *Processor, pool *bufpool.Pool, tracer trace.Tracer) *Service {
	if tracer == nil {
		tracer = otel.Tracer("rana-image-tool/imaging")
	}
	return &Service{
		codec:  codec,
		pool:   pool,
		tracer: tracer,
	}
}

// ConvertToPNG decodes any recognised format and re-encodes it as PNG. The
// original is always marked for deletion; the Committer keeps it when the
// final path is the same file.
func (s *Service) ConvertToPNG(ctx context.Context, unit *batch.LoadUnit) (*batch.ResultUnit, error) {
	ctx, span := s.tracer.Start(ctx, "imaging.ConvertToPNG", trace.WithAttributes(
		attribute.String("file.path", unit.Path),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := s.codec.Decode(unit.Bytes())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("image.source_format", string(format)))

	b := img.Bounds()
	out := s.pool.Get(s.sizeHint(FormatPNG, b.Dx(), b.Dy(), 0))
	if err := s.codec.Encode(out, img, FormatPNG); err != nil {
		out.Release()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ext, _ := ExtensionFor(unit.Ext(), FormatPNG)
	return &batch.ResultUnit{
		Path:           unit.Path,
		TargetExt:      ext,
		Data:           out,
		DeleteOriginal: true,
	}, nil
}

// SetDensity returns a transform that rewrites resolution metadata:
//   - PNG is patched in a single streaming pass over its chunks.
//   - JPEG has its JFIF and EXIF tags rewritten without recompression.
//   - Anything else is decoded and re-encoded as PNG carrying the density.
//
// The output extension follows the format actually produced, so a
// mislabeled file is renamed and its old name removed.
func (s *Service) SetDensity(opts DensityOptions) batch.TransformFunc {
	return func(ctx context.Context, unit *batch.LoadUnit) (*batch.ResultUnit, error) {
		ctx, span := s.tracer.Start(ctx, "imaging.SetDensity", trace.WithAttributes(
			attribute.String("file.path", unit.Path),
			attribute.Bool("density.linear", opts.Linear),
		))
		defer span.End()

		result, err := s.setDensity(ctx, unit, opts, span)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return result, nil
	}
}

func (s *Service) setDensity(ctx context.Context, unit *batch.LoadUnit, opts DensityOptions, span trace.Span) (*batch.ResultUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := unit.Bytes()
	info, err := s.codec.Identify(data)
	if err != nil {
		return nil, err
	}

	ppi := TargetPPI(info.Width, opts)
	if ppi < 1 {
		return nil, fmt.Errorf("computed density %d for width %d: %w", ppi, info.Width, pngchunk.ErrInvalidDensity)
	}
	span.SetAttributes(
		attribute.String("image.format", string(info.Format)),
		attribute.Int("density.ppi", ppi),
	)

	var produced Format
	var out *bufpool.Buffer
	switch info.Format {
	case FormatPNG:
		produced = FormatPNG
		out = s.pool.Get(s.sizeHint(FormatPNG, info.Width, info.Height, len(data)))
		err = pngchunk.PatchDensity(bytes.NewReader(data), out, ppi)
	case FormatJPEG:
		produced = FormatJPEG
		out = s.pool.Get(s.sizeHint(FormatJPEG, info.Width, info.Height, len(data)))
		err = SetJPEGDensity(bytes.NewReader(data), out, ppi)
	default:
		produced = FormatPNG
		out, err = s.reencodePNG(data, info, ppi)
	}
	if err != nil {
		out.Release()
		return nil, err
	}

	ext, changed := ExtensionFor(unit.Ext(), produced)
	return &batch.ResultUnit{
		Path:           unit.Path,
		TargetExt:      ext,
		Data:           out,
		DeleteOriginal: changed,
	}, nil
}

// reencodePNG decodes data, encodes it as PNG and then patches the density
// into the fresh encoding.
func (s *Service) reencodePNG(data []byte, info *Info, ppi int) (*bufpool.Buffer, error) {
	img, _, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	hint := s.sizeHint(FormatPNG, info.Width, info.Height, 0)
	encoded := s.pool.Get(hint)
	defer encoded.Release()
	if err := s.codec.Encode(encoded, img, FormatPNG); err != nil {
		return nil, err
	}

	out := s.pool.Get(encoded.Len() + pngchunk.PhysChunkLen)
	if err := pngchunk.PatchDensity(encoded.Reader(), out, ppi); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// sizeHint estimates the result size. Streaming paths produce roughly the
// input size; re-encodes are sized from the pixel count. The pool caps the
// hint at its retain limit.
func (s *Service) sizeHint(format Format, width, height, inputLen int) int {
	switch {
	case inputLen > 0 && format == FormatPNG:
		return inputLen + pngchunk.PhysChunkLen
	case inputLen > 0:
		return inputLen + 512
	case format == FormatPNG:
		return width * height * 2
	default:
		return width * height
	}
}
