package imgproc

import (
	"image"
	"image/color"
)

// minBarRun is the shortest horizontal run treated as a bar rather than part
// of a glyph.
const minBarRun = 5

// barRun returns the horizontal run length that marks bars and gauge fills in
// a crop of the given height: a tenth of the height, at least minBarRun.
func barRun(rows int) int {
	return max(minBarRun, rows/10)
}

// IsolateText keeps the tall thin strokes of a binarized crop and drops
// everything else. Pixels on horizontal runs of at least barRun(rows) are
// bar candidates; an 8-connected component survives only if some pixel of it
// is not a bar candidate. Surviving 4-connected components of
// rows*(barRun/2) pixels or more are dropped too, which removes gauge fills
// that merely touch a glyph.
func IsolateText(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	on := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			on[y*w+x] = img.GrayAt(b.Min.X+x, b.Min.Y+y).Y != 0
		}
	}

	k := barRun(h)
	seed := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := on[y*w : (y+1)*w]
		for x := 0; x < w; {
			if !row[x] {
				x++
				continue
			}
			end := x
			for end < w && row[end] {
				end++
			}
			if end-x < k {
				for i := x; i < end; i++ {
					seed[y*w+i] = true
				}
			}
			x = end
		}
	}

	// grow the seeds back over their whole components
	kept := make([]bool, w*h)
	var stack []int
	for i, s := range seed {
		if s && !kept[i] {
			kept[i] = true
			stack = append(stack, i)
			stack = flood(stack, w, h, neighbors8, func(j int) bool {
				if !on[j] || kept[j] {
					return false
				}
				kept[j] = true
				return true
			}, nil)
		}
	}

	minSize := h * (k / 2)
	seen := make([]bool, w*h)
	var component []int
	for i, keep := range kept {
		if !keep || seen[i] {
			continue
		}
		seen[i] = true
		component = append(component[:0], i)
		stack = append(stack[:0], i)
		stack = flood(stack, w, h, neighbors4, func(j int) bool {
			if !kept[j] || seen[j] {
				return false
			}
			seen[j] = true
			return true
		}, &component)
		if len(component) >= minSize {
			continue
		}
		for _, j := range component {
			out.SetGray(j%w, j/w, color.Gray{Y: 255})
		}
	}
	return out
}

var (
	neighbors4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// flood pops indices off stack and pushes every in-bounds neighbor that visit
// accepts. Accepted indices are appended to collect when it is non-nil. The
// emptied stack is returned for reuse.
func flood(stack []int, w, h int, offsets [][2]int, visit func(int) bool, collect *[]int) []int {
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for _, d := range offsets {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*w + nx
			if !visit(j) {
				continue
			}
			if collect != nil {
				*collect = append(*collect, j)
			}
			stack = append(stack, j)
		}
	}
	return stack
}
