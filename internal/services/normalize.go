package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// ---------------------------------------------------------------------------
// Image normalization
// Every photo entering the render pipeline is letterboxed onto a canvas of
// the target frame size so ffmpeg receives uniform JPEG inputs. Scaling uses
// Catmull-Rom resampling; alpha is flattened against black.
// ---------------------------------------------------------------------------

const normalizedJPEGQuality = 95

// MediaDecodeError marks a single item whose bytes could not be decoded as
// an image. The render pipeline skips the item and continues.
type MediaDecodeError struct {
	Filename string
	Err      error
}

func (e *MediaDecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %v", e.Filename, e.Err)
}

func (e *MediaDecodeError) Unwrap() error { return e.Err }

// Normalizer converts arbitrary uploaded photos into render-ready frames.
type Normalizer struct {
	Width  int
	Height int
}

func NewNormalizer(width, height int) *Normalizer {
	return &Normalizer{Width: width, Height: height}
}

// Normalize decodes data, scales it to fit within the target frame while
// preserving aspect ratio, centers it on a black canvas, and re-encodes as
// JPEG. filename is used only for error reporting.
func (n *Normalizer) Normalize(data []byte, filename string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &MediaDecodeError{Filename: filename, Err: err}
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, &MediaDecodeError{Filename: filename, Err: fmt.Errorf("zero-sized image")}
	}

	fitW, fitH := fitDimensions(srcW, srcH, n.Width, n.Height)

	canvas := image.NewRGBA(image.Rect(0, 0, n.Width, n.Height))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	// Center the scaled image. Drawing Over flattens any alpha against the
	// black canvas.
	offsetX := (n.Width - fitW) / 2
	offsetY := (n.Height - fitH) / 2
	dstRect := image.Rect(offsetX, offsetY, offsetX+fitW, offsetY+fitH)
	xdraw.CatmullRom.Scale(canvas, dstRect, img, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: normalizedJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	return buf.Bytes(), nil
}

// fitDimensions scales (srcW, srcH) to the largest size that fits within
// (maxW, maxH) without changing aspect ratio. A wider-than-target image is
// pinned to the target width, a taller one to the target height.
func fitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	srcRatio := float64(srcW) / float64(srcH)
	maxRatio := float64(maxW) / float64(maxH)

	var w, h int
	if srcRatio > maxRatio {
		w = maxW
		h = int(float64(maxW) / srcRatio)
	} else {
		h = maxH
		w = int(float64(maxH) * srcRatio)
	}

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
