// Package pipeline implements the per-camera capture -> tile -> detect ->
// reconstruct -> write graph. One Pipeline is built per enabled camera by
// monitor.Monitor; internally it is Capture -> frame channel -> Controller
// (dispatch/collect) -> per-tile channels -> TileDetector pool -> Writer.
package pipeline

import (
	"image"
	"image/color"
)

// RGBImage is a packed H*W*3 byte matrix, row-major, channel order R,G,B.
// A plain byte buffer instead of image.RGBA avoids carrying a throwaway
// alpha channel through every tile and reshape.
type RGBImage struct {
	W, H int
	Pix  []byte
}

func NewRGBImage(w, h int) *RGBImage {
	return &RGBImage{W: w, H: h, Pix: make([]byte, w*h*3)}
}

func (m *RGBImage) At(x, y int) (r, g, b byte) {
	i := (y*m.W + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

func (m *RGBImage) Set(x, y int, r, g, b byte) {
	i := (y*m.W + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

// Clone returns a deep copy, used at the preprocessing boundary where the
// original frame must be preserved alongside the processed one.
func (m *RGBImage) Clone() *RGBImage {
	out := &RGBImage{W: m.W, H: m.H, Pix: make([]byte, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// ToNRGBA converts to a stdlib image for PNG encoding (pipeline/writer.go)
// and for golang.org/x/image/draw resize operations (pipeline/preprocess.go).
func (m *RGBImage) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			r, g, b := m.At(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out
}

func RGBImageFromNRGBA(src *image.NRGBA) *RGBImage {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewRGBImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			out.Set(x, y, c.R, c.G, c.B)
		}
	}
	return out
}

// GrayImage is a packed H*W single-channel byte matrix, used for the
// binary and threshold masks in a DetectionResult.
type GrayImage struct {
	W, H int
	Pix  []byte
}

func NewGrayImage(w, h int) *GrayImage {
	return &GrayImage{W: w, H: h, Pix: make([]byte, w*h)}
}

func (m *GrayImage) At(x, y int) byte { return m.Pix[y*m.W+x] }

func (m *GrayImage) Set(x, y int, v byte) { m.Pix[y*m.W+x] = v }

func (m *GrayImage) ToGray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.W, m.H))
	copy(out.Pix, m.Pix)
	return out
}

// Region is one positive detection area within a tile's local coordinates.
type Region struct {
	X, Y, Width, Height int
	Label               string
	Score               float32
}

// Frame is a single decoded image from Capture, addressed by a
// monotonically increasing per-camera sequence number.
type Frame struct {
	Seq       uint64
	Image     *RGBImage
	OriginTS  int64 // unix nanos, stamped by Capture at decode time
}

// Subframe is dispatched to exactly one TileDetector. Dispatch hands every
// tile the same processed frame reference; TileRow/TileCol/TileH/TileW
// tell the detector which sub-view to slice for itself.
type Subframe struct {
	TileRow, TileCol int
	TileH, TileW     int
	Frame            *RGBImage
	ParentSeq        uint64
}

// DetectionResult is what a TileDetector returns for one Subframe.
// A tile is positive iff len(Regions) > 0.
type DetectionResult struct {
	TileRow, TileCol int
	ParentSeq        uint64
	Frame            *RGBImage
	Binary           *GrayImage
	Thresh           *GrayImage
	Regions          []Region
}

func (d *DetectionResult) Positive() bool { return len(d.Regions) > 0 }

// ReconstructedFrame is the whole-frame artifact Collect emits once all
// rows*cols DetectionResults for a given ParentSeq have been gathered.
type ReconstructedFrame struct {
	ParentSeq   uint64
	RGB         *RGBImage
	Binary      *GrayImage
	Thresh      *GrayImage
	AnyPositive bool
}
