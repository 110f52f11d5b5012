package capture

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/zero2005x/glasscam/internal/camera"
)

func TestEncodeFrame_ProducesValidJPEG(t *testing.T) {
	frame := camera.NewTestFrame(64, 48, nil)

	data, err := EncodeFrame(frame, 85)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	if got := img.Bounds().Dx(); got != 64 {
		t.Errorf("width = %d, want 64", got)
	}
	if got := img.Bounds().Dy(); got != 48 {
		t.Errorf("height = %d, want 48", got)
	}
}

func TestFrameToImage_PaddedRowStride(t *testing.T) {
	// 4x4 luma with row stride 8: rows carry 4 padding bytes that must not
	// leak into the output.
	luma := make([]byte, 4*8)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			luma[y*8+x] = byte(16 * (y*4 + x))
		}
		for x := 4; x < 8; x++ {
			luma[y*8+x] = 0xEE
		}
	}
	cb := []byte{1, 2, 0xEE, 3, 4, 0xEE}
	cr := []byte{5, 6, 0xEE, 7, 8, 0xEE}

	frame := camera.NewRawFrame(4, 4, [3]camera.Plane{
		{Data: luma, RowStride: 8, PixelStride: 1},
		{Data: cb, RowStride: 3, PixelStride: 1},
		{Data: cr, RowStride: 3, PixelStride: 1},
	}, nil)

	img, err := FrameToImage(frame)
	if err != nil {
		t.Fatalf("FrameToImage() error = %v", err)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(16 * (y*4 + x))
			if got := img.Y[y*img.YStride+x]; got != want {
				t.Errorf("Y[%d,%d] = %d, want %d", x, y, got, want)
			}
		}
	}
	wantCb := []byte{1, 2, 3, 4}
	wantCr := []byte{5, 6, 7, 8}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := img.Cb[y*img.CStride+x]; got != wantCb[y*2+x] {
				t.Errorf("Cb[%d,%d] = %d, want %d", x, y, got, wantCb[y*2+x])
			}
			if got := img.Cr[y*img.CStride+x]; got != wantCr[y*2+x] {
				t.Errorf("Cr[%d,%d] = %d, want %d", x, y, got, wantCr[y*2+x])
			}
		}
	}
}

func TestFrameToImage_InterleavedChroma(t *testing.T) {
	// Chroma planes with pixel stride 2, as delivered by semi-planar
	// sensors: samples sit at even offsets.
	luma := make([]byte, 4*4)
	cb := []byte{10, 0, 11, 0, 12, 0, 13}
	cr := []byte{20, 0, 21, 0, 22, 0, 23}

	frame := camera.NewRawFrame(4, 4, [3]camera.Plane{
		{Data: luma, RowStride: 4, PixelStride: 1},
		{Data: cb, RowStride: 4, PixelStride: 2},
		{Data: cr, RowStride: 4, PixelStride: 2},
	}, nil)

	img, err := FrameToImage(frame)
	if err != nil {
		t.Fatalf("FrameToImage() error = %v", err)
	}

	wantCb := []byte{10, 11, 12, 13}
	wantCr := []byte{20, 21, 22, 23}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := img.Cb[y*img.CStride+x]; got != wantCb[y*2+x] {
				t.Errorf("Cb[%d,%d] = %d, want %d", x, y, got, wantCb[y*2+x])
			}
			if got := img.Cr[y*img.CStride+x]; got != wantCr[y*2+x] {
				t.Errorf("Cr[%d,%d] = %d, want %d", x, y, got, wantCr[y*2+x])
			}
		}
	}
}

func TestFrameToImage_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame *camera.RawFrame
	}{
		{
			name:  "nil frame",
			frame: nil,
		},
		{
			name:  "zero dimensions",
			frame: camera.NewRawFrame(0, 0, [3]camera.Plane{}, nil),
		},
		{
			name: "short luma plane",
			frame: camera.NewRawFrame(8, 8, [3]camera.Plane{
				{Data: make([]byte, 10), RowStride: 8, PixelStride: 1},
				{Data: make([]byte, 16), RowStride: 4, PixelStride: 1},
				{Data: make([]byte, 16), RowStride: 4, PixelStride: 1},
			}, nil),
		},
		{
			name: "bad stride",
			frame: camera.NewRawFrame(8, 8, [3]camera.Plane{
				{Data: make([]byte, 64), RowStride: 0, PixelStride: 1},
				{Data: make([]byte, 16), RowStride: 4, PixelStride: 1},
				{Data: make([]byte, 16), RowStride: 4, PixelStride: 1},
			}, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FrameToImage(tt.frame); err == nil {
				t.Error("FrameToImage() expected error, got nil")
			}
		})
	}
}

func TestEncodeFrame_DefaultQuality(t *testing.T) {
	frame := camera.NewTestFrame(32, 32, nil)
	data, err := EncodeFrame(frame, 0)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("output with defaulted quality is not a valid JPEG: %v", err)
	}
}
