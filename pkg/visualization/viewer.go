package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"datainspect/internal/models"
)

// ExtractSlice renders a 2-D plane of a displayed array, mapping [lo, hi]
// to the full intensity range. Scalar arrays give a 16-bit grayscale image;
// arrays with a trailing RGB channel axis give an RGBA image with every
// channel scaled the same way.
//
// 2-D arrays (height, width) only have the "z" plane at position 0.
// 3-D arrays (depth, height, width) can be cut along any axis:
//   - "x": the (z, y) plane at x = position
//   - "y": the (x, z) plane at y = position
//   - "z": the (x, y) plane at z = position
func ExtractSlice(arr *models.Array, axis string, position int, lo, hi float64) (image.Image, error) {
	if !arr.Valid() {
		return nil, fmt.Errorf("array has no data")
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	spatial := arr.Spatial()
	var depth, height, width int
	switch len(spatial) {
	case 2:
		depth, height, width = 1, spatial[0], spatial[1]
	case 3:
		depth, height, width = spatial[0], spatial[1], spatial[2]
	default:
		return nil, fmt.Errorf("cannot slice a %d-dimensional array", len(spatial))
	}

	// plane maps image pixel (u, v) to volume voxel (z, y, x)
	var w, h int
	var plane func(u, v int) (z, y, x int)
	switch strings.ToLower(axis) {
	case "x":
		if position >= width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, width)
		}
		w, h = depth, height
		plane = func(u, v int) (int, int, int) { return u, v, position }
	case "y":
		if position >= height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, height)
		}
		w, h = width, depth
		plane = func(u, v int) (int, int, int) { return v, position, u }
	case "z":
		if position >= depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, depth)
		}
		w, h = width, height
		plane = func(u, v int) (int, int, int) { return position, v, u }
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	// idx is reused for every lookup: [z,] y, x [, channel]
	idx := make([]int, arr.NDim())
	channels := arr.ChannelCount()
	sample := func(z, y, x, c int) float64 {
		i := 0
		if len(spatial) == 3 {
			idx[i] = z
			i++
		}
		idx[i], idx[i+1] = y, x
		if channels > 1 {
			idx[i+2] = c
		}
		return arr.At(idx...)
	}

	scale := hi - lo
	if scale <= 0 {
		scale = 1
	}
	level := func(v float64) uint16 {
		return uint16(math.Max(0, math.Min(65535, (v-lo)/scale*65535)))
	}

	if channels >= 3 {
		img := image.NewRGBA64(image.Rect(0, 0, w, h))
		for v := 0; v < h; v++ {
			for u := 0; u < w; u++ {
				z, y, x := plane(u, v)
				img.SetRGBA64(u, v, color.RGBA64{
					R: level(sample(z, y, x, 0)),
					G: level(sample(z, y, x, 1)),
					B: level(sample(z, y, x, 2)),
					A: 0xffff,
				})
			}
		}
		return img, nil
	}

	// scalar data, or the first channel of a two-channel array
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			z, y, x := plane(u, v)
			img.SetGray16(u, v, color.Gray16{Y: level(sample(z, y, x, 0))})
		}
	}
	return img, nil
}

// SaveSlice writes img to filename as PNG, or as JPEG for .jpg/.jpeg names
func SaveSlice(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(file, img)
	}
}

// MiddlePosition returns the centre plane along axis, used when a caller
// asks for a preview without naming a position. A trailing colour axis is
// not a spatial axis.
func MiddlePosition(arr *models.Array, axis string) int {
	spatial := arr.Spatial()
	switch len(spatial) {
	case 2:
		return 0
	case 3:
		switch strings.ToLower(axis) {
		case "x":
			return spatial[2] / 2
		case "y":
			return spatial[1] / 2
		default:
			return spatial[0] / 2
		}
	}
	return 0
}
