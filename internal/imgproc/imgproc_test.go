package imgproc

import (
	"image"
	"image/color"
	"testing"
)

func TestInferStandardResolution(t *testing.T) {
	tests := []struct {
		name               string
		rows, cols         int
		wantRows, wantCols int
	}{
		{"exact", 1540, 2640, 1540, 2640},
		{"half", 770, 1320, 770, 1320},
		{"too wide", 1000, 3000, 1000, 1714},
		{"too tall", 2000, 2640, 1540, 2640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, c := InferStandardResolution(tt.rows, tt.cols)
			if r != tt.wantRows || c != tt.wantCols {
				t.Errorf("InferStandardResolution(%d, %d) = (%d, %d), want (%d, %d)",
					tt.rows, tt.cols, r, c, tt.wantRows, tt.wantCols)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	frame := image.Rect(0, 0, StandardCols, StandardRows)
	tests := []struct {
		region Region
		want   image.Rectangle
	}{
		{RegionLevel, image.Rect(0, 1425, 264, 1540)},
		{RegionExp, image.Rect(1399, 1425, 1795, 1482)},
		{RegionHP, image.Rect(686, 1425, 1037, 1482)},
		{RegionMP, image.Rect(1029, 1425, 1412, 1482)},
	}
	for _, tt := range tests {
		t.Run(tt.region.String(), func(t *testing.T) {
			if got := Bounds(frame, tt.region); got != tt.want {
				t.Errorf("Bounds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundsOffsetFrame(t *testing.T) {
	frame := image.Rect(100, 50, 100+StandardCols, 50+StandardRows)
	got := Bounds(frame, RegionLevel)
	want := image.Rect(100, 1475, 364, 1590)
	if got != want {
		t.Errorf("Bounds = %v, want %v", got, want)
	}
}

func TestCrop(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, StandardCols, StandardRows))
	img.Set(0, 1425, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	out := Crop(img, RegionLevel)
	if out.Bounds() != image.Rect(0, 0, 264, 115) {
		t.Fatalf("Crop bounds = %v", out.Bounds())
	}
	if got := out.RGBAAt(0, 0); got != (color.RGBA{R: 1, G: 2, B: 3, A: 255}) {
		t.Errorf("top-left pixel = %v", got)
	}
}

func TestBinarize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 200, B: 200, A: 255}) // all above
	img.Set(1, 0, color.RGBA{R: 190, G: 200, B: 200, A: 255}) // equal is not above
	img.Set(2, 0, color.RGBA{R: 255, G: 255, B: 10, A: 255})  // one channel low
	img.Set(3, 0, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	out := Binarize(img, 190)
	want := []uint8{255, 0, 0, 0}
	for x, w := range want {
		if got := out.GrayAt(x, 0).Y; got != w {
			t.Errorf("pixel %d = %d, want %d", x, got, w)
		}
	}
}

func TestRegionThreshold(t *testing.T) {
	if RegionLevel.Threshold() != 180 {
		t.Errorf("level threshold = %d", RegionLevel.Threshold())
	}
	for _, r := range []Region{RegionExp, RegionHP, RegionMP} {
		if r.Threshold() != 190 {
			t.Errorf("%s threshold = %d", r, r.Threshold())
		}
	}
}

func TestUpscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 5))
	if got := Upscale(img, 1); got != image.Image(img) {
		t.Error("factor 1 should return input")
	}
	if got := Upscale(img, 3).Bounds(); got.Dx() != 30 || got.Dy() != 15 {
		t.Errorf("Upscale bounds = %v", got)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("Decode(nil) should fail")
	}
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Decode(garbage) should fail")
	}

	src := image.NewGray(image.Rect(0, 0, 3, 2))
	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("bounds = %v, want %v", img.Bounds(), src.Bounds())
	}
}
