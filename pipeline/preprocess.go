package pipeline

import (
	"image"

	"golang.org/x/image/draw"
)

// Preprocess snapshots the original frame, resizes it (scale -> width ->
// height, first non -1 wins), crops by ROI, and applies a 3x3 Gaussian
// blur. Returns (processed, original) with the original left untouched.
func Preprocess(frame *RGBImage, cfg Config) (processed, original *RGBImage) {
	original = frame.Clone()

	out := frame
	switch {
	case cfg.ResizeScale != -1 && cfg.ResizeScale > 0:
		out = resize(out, int(float64(out.W)*cfg.ResizeScale), int(float64(out.H)*cfg.ResizeScale))
	case cfg.ResizeWidth != -1 && cfg.ResizeWidth > 0:
		h := out.H * cfg.ResizeWidth / out.W
		out = resize(out, cfg.ResizeWidth, h)
	case cfg.ResizeHeight != -1 && cfg.ResizeHeight > 0:
		w := out.W * cfg.ResizeHeight / out.H
		out = resize(out, w, cfg.ResizeHeight)
	}

	out = cropROI(out, cfg.ROI)
	out = gaussianBlur3x3(out)
	return out, original
}

func resize(src *RGBImage, w, h int) *RGBImage {
	if w <= 0 || h <= 0 || (w == src.W && h == src.H) {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src.ToNRGBA(), src.ToNRGBA().Bounds(), draw.Over, nil)
	return RGBImageFromNRGBA(dst)
}

func cropROI(src *RGBImage, roi ROI) *RGBImage {
	if roi.Width <= 0 || roi.Height <= 0 {
		return src
	}
	x0, y0 := roi.X, roi.Y
	x1, y1 := x0+roi.Width, y0+roi.Height
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > src.W {
		x1 = src.W
	}
	if y1 > src.H {
		y1 = src.H
	}
	if x1 <= x0 || y1 <= y0 {
		return src
	}
	w, h := x1-x0, y1-y0
	out := NewRGBImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := src.At(x0+x, y0+y)
			out.Set(x, y, r, g, b)
		}
	}
	return out
}

// gaussianBlur3x3 applies the standard normalized 3x3 Gaussian kernel
// ([[1,2,1],[2,4,2],[1,2,1]]/16, the sigma=0 auto-derived kernel OpenCV
// produces for a 3x3 window) with edge-replicated borders. No available
// third-party library exposes 2-D convolution/blur without pulling in a
// full computer-vision binding, so this is a direct stdlib implementation
// (see DESIGN.md).
func gaussianBlur3x3(src *RGBImage) *RGBImage {
	weights := [3][3]int{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}}
	const norm = 16

	out := NewRGBImage(src.W, src.H)
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			var sr, sg, sb int
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := clamp(x+kx, 0, src.W-1)
					sy := clamp(y+ky, 0, src.H-1)
					r, g, b := src.At(sx, sy)
					w := weights[ky+1][kx+1]
					sr += int(r) * w
					sg += int(g) * w
					sb += int(b) * w
				}
			}
			out.Set(x, y, byte(sr/norm), byte(sg/norm), byte(sb/norm))
		}
	}
	return out
}
