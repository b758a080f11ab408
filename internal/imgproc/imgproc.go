// Package imgproc locates the status-bar regions of a game frame and prepares
// them for text recognition.
package imgproc

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/nfnt/resize"

	apperrors "github.com/explab/explab/internal/errors"
)

// Reference layout the region fractions are measured against.
const (
	StandardRows = 1540
	StandardCols = 2640

	statusBarFraction = 0.075
)

// Region names a status-bar field.
type Region int

const (
	RegionLevel Region = iota
	RegionExp
	RegionHP
	RegionMP
)

func (r Region) String() string {
	switch r {
	case RegionLevel:
		return "level"
	case RegionExp:
		return "exp"
	case RegionHP:
		return "hp"
	case RegionMP:
		return "mp"
	default:
		return "unknown"
	}
}

// column span as fractions of the standard width
var regionCols = map[Region][2]float64{
	RegionLevel: {0, 0.10},
	RegionExp:   {0.53, 0.68},
	RegionHP:    {0.26, 0.393},
	RegionMP:    {0.39, 0.535},
}

// Threshold returns the binarization cutoff used for r.
func (r Region) Threshold() uint8 {
	if r == RegionLevel {
		return 180
	}
	return 190
}

// InferStandardResolution shrinks whichever axis is oversized relative to the
// reference aspect ratio, so letterboxed or wide captures map onto the same
// layout.
func InferStandardResolution(rows, cols int) (int, int) {
	switch {
	case rows*StandardCols < cols*StandardRows:
		cols = rows * StandardCols / StandardRows
	case rows*StandardCols > cols*StandardRows:
		rows = cols * StandardRows / StandardCols
	}
	return rows, cols
}

// Bounds returns the rectangle of r inside a frame with the given bounds.
// The status bar is anchored to the bottom edge and columns to the left edge.
func Bounds(frame image.Rectangle, r Region) image.Rectangle {
	rows, cols := frame.Dy(), frame.Dx()
	stdRows, stdCols := InferStandardResolution(rows, cols)

	top := rows - int(float64(stdRows)*statusBarFraction)
	bottom := rows
	if r != RegionLevel {
		bottom = (top + rows) / 2
	}
	span := regionCols[r]
	left := int(float64(stdCols) * span[0])
	right := int(float64(stdCols) * span[1])

	return image.Rect(left, top, right, bottom).Add(frame.Min).Intersect(frame)
}

// Crop copies region r out of img.
func Crop(img image.Image, r Region) *image.RGBA {
	rect := Bounds(img.Bounds(), r)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// Binarize maps each pixel to white when all of its RGB channels are strictly
// above threshold, black otherwise.
func Binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	t := uint32(threshold)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 > t && g>>8 > t && bl>>8 > t {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Upscale enlarges img by factor. Factors below 2 return img unchanged.
func Upscale(img image.Image, factor int) image.Image {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	return resize.Resize(uint(b.Dx()*factor), uint(b.Dy()*factor), img, resize.Bilinear)
}

// Prepare binarizes a crop of r with the region threshold, strips bars from
// every region but the level, and upscales the result.
func Prepare(crop image.Image, r Region, upscale int) image.Image {
	bin := Binarize(crop, r.Threshold())
	if r != RegionLevel {
		bin = IsolateText(bin)
	}
	return Upscale(bin, upscale)
}

// ForOCR crops r out of img and prepares it for recognition.
func ForOCR(img image.Image, r Region, upscale int) image.Image {
	return Prepare(Crop(img, r), r, upscale)
}

// Decode decodes an encoded frame. Registered formats depend on the
// caller's imports; PNG is always available.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CodeOCRInvalidImage, "empty frame")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRInvalidImage, "decode frame")
	}
	return img, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode png")
	}
	return buf.Bytes(), nil
}
