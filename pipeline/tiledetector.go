package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// TileDetector is the per-tile kernel: a pure function from a sub-image to
// a DetectionResult. The Controller only wires lifecycle; detection
// semantics are pluggable.
type TileDetector interface {
	Detect(sub *Subframe) *DetectionResult
}

// sliceSubview crops the (tile_row, tile_col, tile_h, tile_w) sub-view of
// sub.Frame. Dispatch sends the full frame, and the detector slices its
// own view.
func sliceSubview(sub *Subframe) *RGBImage {
	out := NewRGBImage(sub.TileW, sub.TileH)
	x0 := sub.TileCol * sub.TileW
	y0 := sub.TileRow * sub.TileH
	for y := 0; y < sub.TileH; y++ {
		for x := 0; x < sub.TileW; x++ {
			r, g, b := sub.Frame.At(x0+x, y0+y)
			out.Set(x, y, r, g, b)
		}
	}
	return out
}

// IdentityTileDetector never reports a region and returns the sub-view
// unmodified. Used to check that reconstructing tiles produced by an
// identity detector reproduces the preprocessed frame exactly.
type IdentityTileDetector struct{}

func (IdentityTileDetector) Detect(sub *Subframe) *DetectionResult {
	view := sliceSubview(sub)
	return &DetectionResult{
		TileRow:   sub.TileRow,
		TileCol:   sub.TileCol,
		ParentSeq: sub.ParentSeq,
		Frame:     view,
		Binary:    NewGrayImage(view.W, view.H),
		Thresh:    NewGrayImage(view.W, view.H),
		Regions:   nil,
	}
}

// MotionTileDetector is the default production kernel: background
// subtraction against the previous frame per tile, writing positive
// regions into region_path/<index>/<r>-<c>. It keeps its own reference
// frame across calls, so one MotionTileDetector instance must be
// dedicated to a single (tile_row, tile_col) lane, exactly as the
// Controller wires it.
type MotionTileDetector struct {
	TileRow, TileCol int
	RegionDir        string // region_path/<index>/<r>-<c>
	Threshold        byte   // per-channel absolute difference threshold
	MinRegionArea    int

	reference *RGBImage
	saveCount int
}

func NewMotionTileDetector(tileRow, tileCol int, regionDir string) *MotionTileDetector {
	if err := os.MkdirAll(regionDir, 0o755); err != nil {
		log.Printf("[TileDetector %d-%d] failed to create region dir %s: %v", tileRow, tileCol, regionDir, err)
	}
	return &MotionTileDetector{
		TileRow:       tileRow,
		TileCol:       tileCol,
		RegionDir:     regionDir,
		Threshold:     25,
		MinRegionArea: 36,
	}
}

func (d *MotionTileDetector) Detect(sub *Subframe) *DetectionResult {
	view := sliceSubview(sub)

	binary := NewGrayImage(view.W, view.H)
	thresh := NewGrayImage(view.W, view.H)

	var regions []Region
	if d.reference != nil && d.reference.W == view.W && d.reference.H == view.H {
		regions = d.diff(view, binary, thresh)
	}
	d.reference = view.Clone()

	if len(regions) > 0 {
		d.saveCount++
		target := filepath.Join(d.RegionDir, fmt.Sprintf("%d.png", d.saveCount))
		if err := encodePNG(target, view.ToNRGBA()); err != nil {
			log.Printf("[TileDetector %d-%d] write region artifact: %v", d.TileRow, d.TileCol, err)
		}
	}

	return &DetectionResult{
		TileRow:   sub.TileRow,
		TileCol:   sub.TileCol,
		ParentSeq: sub.ParentSeq,
		Frame:     view,
		Binary:    binary,
		Thresh:    thresh,
		Regions:   regions,
	}
}

func (d *MotionTileDetector) diff(view *RGBImage, binary, thresh *GrayImage) []Region {
	minX, minY, maxX, maxY := view.W, view.H, -1, -1
	for y := 0; y < view.H; y++ {
		for x := 0; x < view.W; x++ {
			r0, g0, b0 := d.reference.At(x, y)
			r1, g1, b1 := view.At(x, y)
			delta := absDiff(r0, r1) + absDiff(g0, g1) + absDiff(b0, b1)
			if delta/3 > int(d.Threshold) {
				binary.Set(x, y, 255)
				thresh.Set(x, y, byte(delta/3))
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < minX || maxY < minY {
		return nil
	}
	area := (maxX - minX + 1) * (maxY - minY + 1)
	if area < d.MinRegionArea {
		return nil
	}
	return []Region{{
		X: minX, Y: minY,
		Width: maxX - minX + 1, Height: maxY - minY + 1,
		Label: "motion",
		Score: 1.0,
	}}
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
