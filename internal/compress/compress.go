// Package compress re-targets already-encoded images to a byte budget for
// the bandwidth-constrained link between the glasses and the phone. It is
// independent of how the image was obtained.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/gif" // register decoders for re-targeting arbitrary inputs
	_ "image/png"
)

// Quality stepping bounds.
const (
	// QualityFloor is the hard stop: the compressor never steps below it,
	// accepting an over-budget result instead.
	QualityFloor = 30
	// QualityStep is subtracted per pass while over budget.
	QualityStep = 10
)

// Profile defaults.
const (
	DefaultTargetWidth  = 1280
	DefaultTargetHeight = 720
	DefaultQuality      = 85
	DefaultMaxBytes     = 200 << 10
)

// Profile is an immutable compression target. Quality stepping produces new
// candidates; the profile itself is never mutated.
type Profile struct {
	TargetWidth  int
	TargetHeight int
	// Quality is the starting JPEG quality (1-100).
	Quality int
	// MaxBytes is the transmission byte budget. Best-effort: when even the
	// quality floor cannot meet it, the closest valid result is returned.
	MaxBytes int
}

// DefaultProfile returns the stock transfer target: 1280x720, quality 85,
// 200 KB budget.
func DefaultProfile() Profile {
	return Profile{
		TargetWidth:  DefaultTargetWidth,
		TargetHeight: DefaultTargetHeight,
		Quality:      DefaultQuality,
		MaxBytes:     DefaultMaxBytes,
	}
}

// Result is a completed compression run. The data is always a complete,
// independently decodable JPEG.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Quality int
	// Passes counts encode passes; 0 means the input was returned unchanged.
	Passes int
}

// Compress re-targets the encoded image in data to the profile. The source
// is decoded bounds-first so no more pixels are decoded than needed, scaled
// preserving aspect ratio (never upscaled) so the larger dimension meets the
// target bound, and encoded with stepped-down quality until the budget is met
// or the floor is hit.
func Compress(data []byte, p Profile) (*Result, error) {
	if p.TargetWidth <= 0 {
		p.TargetWidth = DefaultTargetWidth
	}
	if p.TargetHeight <= 0 {
		p.TargetHeight = DefaultTargetHeight
	}
	if p.Quality <= 0 || p.Quality > 100 {
		p.Quality = DefaultQuality
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode bounds: %w", err)
	}

	// Already small enough on both axes and within budget: hand the input
	// back untouched rather than burning an encode pass.
	if cfg.Width <= p.TargetWidth && cfg.Height <= p.TargetHeight &&
		(p.MaxBytes <= 0 || len(data) <= p.MaxBytes) {
		return &Result{Data: data, Width: cfg.Width, Height: cfg.Height, Quality: p.Quality}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// Cheap power-of-two downsample first, so the fine scale never works on
	// more pixels than it needs.
	if s := sampleSize(cfg.Width, cfg.Height, p.TargetWidth, p.TargetHeight); s > 1 {
		img = downsample(img, s)
	}

	bounds := img.Bounds()
	tw, th := fitWithin(bounds.Dx(), bounds.Dy(), p.TargetWidth, p.TargetHeight)
	if tw != bounds.Dx() || th != bounds.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
	}

	quality := p.Quality
	passes := 0
	var best []byte
	for {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		passes++
		best = buf.Bytes()

		if p.MaxBytes <= 0 || len(best) <= p.MaxBytes || quality <= QualityFloor {
			break
		}
		quality -= QualityStep
		if quality < QualityFloor {
			quality = QualityFloor
		}
	}

	return &Result{Data: best, Width: tw, Height: th, Quality: quality, Passes: passes}, nil
}

// sampleSize returns the largest power-of-two factor at which decoding still
// yields at least the requested size in both dimensions.
func sampleSize(width, height, reqWidth, reqHeight int) int {
	s := 1
	if reqWidth <= 0 || reqHeight <= 0 {
		return s
	}
	for width/(s*2) >= reqWidth && height/(s*2) >= reqHeight {
		s *= 2
	}
	return s
}

// fitWithin scales (w, h) preserving aspect ratio so the larger dimension
// matches the larger target bound. Never upscales.
func fitWithin(w, h, targetW, targetH int) (int, int) {
	bound := targetW
	if targetH > bound {
		bound = targetH
	}
	long := w
	if h > long {
		long = h
	}
	if long <= bound {
		return w, h
	}
	ratio := float64(bound) / float64(long)
	tw := int(float64(w)*ratio + 0.5)
	th := int(float64(h)*ratio + 0.5)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// downsample shrinks the image by an integer factor with nearest-neighbor
// sampling. The source is not referenced afterwards.
func downsample(src image.Image, factor int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx() / factor
	h := bounds.Dy() / factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
