package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/zero2005x/glasscam/internal/camera"
)

// DefaultJPEGQuality is the base encode quality for captured frames.
const DefaultJPEGQuality = 85

// FrameToImage validates plane geometry and repacks the planar luma/chroma
// frame into the contiguous 4:2:0 layout the JPEG encoder consumes. Source
// planes may carry padded row strides and interleaved chroma (pixel stride 2);
// the output is always tightly packed.
func FrameToImage(f *camera.RawFrame) (*image.YCbCr, error) {
	if f == nil {
		return nil, fmt.Errorf("nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("bad frame dimensions %dx%d", f.Width, f.Height)
	}

	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	dims := [3]struct{ w, h int }{
		{f.Width, f.Height},
		{cw, ch},
		{cw, ch},
	}
	for i, p := range f.Planes {
		if err := checkPlane(p, dims[i].w, dims[i].h); err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
	}

	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio420)
	copyPlane(img.Y, img.YStride, f.Planes[0], f.Width, f.Height)
	copyPlane(img.Cb, img.CStride, f.Planes[1], cw, ch)
	copyPlane(img.Cr, img.CStride, f.Planes[2], cw, ch)
	return img, nil
}

// checkPlane verifies the plane buffer covers width×height samples at its
// declared strides.
func checkPlane(p camera.Plane, width, height int) error {
	if p.PixelStride <= 0 || p.RowStride <= 0 {
		return fmt.Errorf("bad strides row=%d pixel=%d", p.RowStride, p.PixelStride)
	}
	need := (height-1)*p.RowStride + (width-1)*p.PixelStride + 1
	if len(p.Data) < need {
		return fmt.Errorf("buffer too short: have %d, need %d", len(p.Data), need)
	}
	return nil
}

func copyPlane(dst []byte, dstStride int, p camera.Plane, width, height int) {
	for y := 0; y < height; y++ {
		srcRow := y * p.RowStride
		dstRow := y * dstStride
		if p.PixelStride == 1 {
			copy(dst[dstRow:dstRow+width], p.Data[srcRow:srcRow+width])
			continue
		}
		for x := 0; x < width; x++ {
			dst[dstRow+x] = p.Data[srcRow+x*p.PixelStride]
		}
	}
}

// EncodeFrame converts a raw frame into a complete JPEG at the given quality.
// A conversion failure is reported to the caller as a capture failure; no
// partial output is ever produced.
func EncodeFrame(f *camera.RawFrame, quality int) ([]byte, error) {
	img, err := FrameToImage(f)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
