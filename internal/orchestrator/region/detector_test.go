package region

import (
	"image"
	"image/color"
	"testing"

	"github.com/explab/explab/internal/imgproc"
)

// makePattern creates test images with distinct patterns for pHash testing.
func makePattern(pattern int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var c color.RGBA
			switch pattern {
			case 0: // solid gray
				c = color.RGBA{R: 128, G: 128, B: 128, A: 255}
			case 1: // checkerboard
				if (x/8+y/8)%2 == 0 {
					c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
				} else {
					c = color.RGBA{A: 255}
				}
			case 2: // horizontal gradient
				c = color.RGBA{R: uint8(x * 4), B: uint8(255 - x*4), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestUnchanged_FirstCrop(t *testing.T) {
	d := NewDetector(0)
	if d.Unchanged(imgproc.RegionExp, makePattern(0)) {
		t.Error("first crop should count as changed")
	}
	if d.last[imgproc.RegionExp] == nil {
		t.Error("hash should be stored after first crop")
	}
}

func TestUnchanged_IdenticalCrops(t *testing.T) {
	d := NewDetector(0)
	d.Unchanged(imgproc.RegionExp, makePattern(1))
	if !d.Unchanged(imgproc.RegionExp, makePattern(1)) {
		t.Error("identical crops should be unchanged")
	}
}

func TestUnchanged_DifferentCrops(t *testing.T) {
	d := NewDetector(0)
	d.Unchanged(imgproc.RegionExp, makePattern(1))
	if d.Unchanged(imgproc.RegionExp, makePattern(2)) {
		t.Error("distinct crops should be changed")
	}
}

func TestUnchanged_RegionsIndependent(t *testing.T) {
	d := NewDetector(0)
	d.Unchanged(imgproc.RegionHP, makePattern(1))
	if d.Unchanged(imgproc.RegionMP, makePattern(1)) {
		t.Error("first crop of another region should count as changed")
	}
}

func TestUnchanged_Disabled(t *testing.T) {
	d := NewDetector(-1)
	d.Unchanged(imgproc.RegionExp, makePattern(0))
	if d.Unchanged(imgproc.RegionExp, makePattern(0)) {
		t.Error("negative distance should disable detection")
	}
}

func TestForget(t *testing.T) {
	d := NewDetector(0)
	d.Unchanged(imgproc.RegionLevel, makePattern(2))
	d.Forget()
	if d.Unchanged(imgproc.RegionLevel, makePattern(2)) {
		t.Error("crop after Forget should count as changed")
	}
}
