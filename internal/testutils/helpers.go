package testutils

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// webpLossless1x1 is a 1x1 lossless WebP image.
const webpLossless1x1 = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

// TestingInterface defines the interface for testing frameworks (compatible with testing.T)
type TestingInterface interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}

// GradientImage returns a deterministic NRGBA image of the given size.
func GradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(width, 1)),
				G: uint8(y * 255 / max(height, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// PNGBytes encodes a gradient image as PNG.
func PNGBytes(t TestingInterface, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, GradientImage(width, height)); err != nil {
		t.Fatalf("failed to encode png fixture: %v", err)
	}
	return buf.Bytes()
}

// JPEGBytes encodes a gradient image as baseline JPEG without any APPn
// segments.
func JPEGBytes(t TestingInterface, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, GradientImage(width, height), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("failed to encode jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

// WebPBytes returns a 1x1 lossless WebP image.
func WebPBytes(t TestingInterface) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(webpLossless1x1)
	if err != nil {
		t.Fatalf("failed to decode webp fixture: %v", err)
	}
	return data
}

// WithJPEGSegment inserts an APPn segment directly after SOI.
func WithJPEGSegment(jpegData []byte, marker byte, payload []byte) []byte {
	out := make([]byte, 0, len(jpegData)+len(payload)+4)
	out = append(out, jpegData[:2]...)
	out = append(out, 0xFF, marker)
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(payload)+2))
	out = append(out, length[:]...)
	out = append(out, payload...)
	return append(out, jpegData[2:]...)
}

// JFIFSegment returns a JFIF APP0 payload with the given density.
func JFIFSegment(units byte, x, y uint16) []byte {
	p := []byte("JFIF\x00\x01\x01")
	p = append(p, units)
	p = binary.BigEndian.AppendUint16(p, x)
	p = binary.BigEndian.AppendUint16(p, y)
	return append(p, 0, 0)
}

// WriteFile writes data under dir, creating parent directories.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}
