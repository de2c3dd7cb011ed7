package pipeline

// reconstruct reassembles one DetectionResult per tile (ordered row-major,
// i = tileRow*cols+tileCol) into the three tiled matrices. Go has no
// array-reshape primitive, so each tile's pixels are copied directly into
// place in the output buffers instead of reshaping/transposing a flat
// array.
func reconstruct(results []*DetectionResult, rows, cols, tileH, tileW int, drawBoundary bool) *ReconstructedFrame {
	H, W := rows*tileH, cols*tileW
	rgb := NewRGBImage(W, H)
	binary := NewGrayImage(W, H)
	thresh := NewGrayImage(W, H)

	anyPositive := false
	for i, res := range results {
		if res == nil {
			continue
		}
		r, c := i/cols, i%cols
		x0, y0 := c*tileW, r*tileH
		placeRGB(rgb, res.Frame, x0, y0)
		placeGray(binary, res.Binary, x0, y0)
		placeGray(thresh, res.Thresh, x0, y0)
		if res.Positive() {
			anyPositive = true
		}
	}

	if drawBoundary {
		drawGridLines(rgb, rows, cols, tileH, tileW)
	}

	parentSeq := uint64(0)
	for _, res := range results {
		if res != nil {
			parentSeq = res.ParentSeq
			break
		}
	}

	return &ReconstructedFrame{
		ParentSeq:   parentSeq,
		RGB:         rgb,
		Binary:      binary,
		Thresh:      thresh,
		AnyPositive: anyPositive,
	}
}

func placeRGB(dst, tile *RGBImage, x0, y0 int) {
	if tile == nil {
		return
	}
	for y := 0; y < tile.H && y0+y < dst.H; y++ {
		for x := 0; x < tile.W && x0+x < dst.W; x++ {
			r, g, b := tile.At(x, y)
			dst.Set(x0+x, y0+y, r, g, b)
		}
	}
}

func placeGray(dst, tile *GrayImage, x0, y0 int) {
	if tile == nil {
		return
	}
	for y := 0; y < tile.H && y0+y < dst.H; y++ {
		for x := 0; x < tile.W && x0+x < dst.W; x++ {
			dst.Set(x0+x, y0+y, tile.At(x, y))
		}
	}
}

// drawGridLines overlays one-pixel-thick red lines at every internal tile
// edge.
func drawGridLines(img *RGBImage, rows, cols, tileH, tileW int) {
	for r := 1; r < rows; r++ {
		y := r * tileH
		if y >= img.H {
			continue
		}
		for x := 0; x < img.W; x++ {
			img.Set(x, y, 255, 0, 0)
		}
	}
	for c := 1; c < cols; c++ {
		x := c * tileW
		if x >= img.W {
			continue
		}
		for y := 0; y < img.H; y++ {
			img.Set(x, y, 255, 0, 0)
		}
	}
}
