package decode

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/go-git/go-billy/v5"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"datainspect/internal/models"
)

// decodeImage reads a PNG, JPEG, GIF or BMP file. 2-D images get an identity transform.
func decodeImage(fsys billy.Filesystem, path string) (*models.Array, *models.Transform, error) {
	img, err := readImage(fsys, path, func(r io.Reader) (image.Image, error) {
		img, _, err := image.Decode(r)
		return img, err
	})
	if err != nil {
		return nil, nil, err
	}
	return ImageToArray(img), models.Identity(2), nil
}

// decodeTIFF reads the first page of a TIFF file. No transform is reported.
func decodeTIFF(fsys billy.Filesystem, path string) (*models.Array, *models.Transform, error) {
	img, err := readImage(fsys, path, tiff.Decode)
	if err != nil {
		return nil, nil, err
	}
	return ImageToArray(img), nil, nil
}

func readImage(fsys billy.Filesystem, path string, dec func(io.Reader) (image.Image, error)) (image.Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, err := dec(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// ImageToArray converts an image to an array of raw sample values.
// Grayscale and paletted images become (height, width); paletted images keep
// their palette index so label maps survive. Everything else becomes
// (height, width, 3) with 8-bit RGB channels.
func ImageToArray(img image.Image) *models.Array {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		arr := models.NewArray(height, width)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				arr.Data[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return arr

	case *image.Gray16:
		arr := models.NewArray(height, width)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				arr.Data[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return arr

	case *image.Paletted:
		arr := models.NewArray(height, width)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				arr.Data[y*width+x] = float64(src.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return arr
	}

	arr := models.NewArray(height, width, 3)
	arr.Channels = 3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := (y*width + x) * 3
			arr.Data[off] = float64(r >> 8)
			arr.Data[off+1] = float64(g >> 8)
			arr.Data[off+2] = float64(b >> 8)
		}
	}
	return arr
}
