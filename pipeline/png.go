package pipeline

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// encodePNG writes img to path, creating parent directories as needed.
// Shared by Writer (reconstructed frames) and MotionTileDetector (region
// artifacts); both land on the stdlib image/png encoder since no
// third-party library in the dependency set wraps PNG encoding.
func encodePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
