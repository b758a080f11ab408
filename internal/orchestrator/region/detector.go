// Package region decides whether a status-bar crop changed since the last
// recognized reading.
package region

import (
	"image"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/explab/explab/internal/imgproc"
)

// Detector keeps the perceptual hash of the last accepted crop per region.
// A negative max distance disables detection.
type Detector struct {
	mu          sync.Mutex
	maxDistance int
	last        map[imgproc.Region]*goimagehash.ImageHash
}

// NewDetector creates a detector treating crops within maxDistance of the
// previous one as unchanged.
func NewDetector(maxDistance int) *Detector {
	return &Detector{
		maxDistance: maxDistance,
		last:        make(map[imgproc.Region]*goimagehash.ImageHash),
	}
}

// Unchanged computes the pHash of crop and reports whether it is within the
// max distance of the last accepted hash for r. The stored hash only moves
// when the crop changed, so slow drift still registers.
func (d *Detector) Unchanged(r imgproc.Region, crop image.Image) bool {
	hash, err := goimagehash.PerceptionHash(crop)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.last[r]
	if prev == nil || d.maxDistance < 0 {
		d.last[r] = hash
		return false
	}

	dist, err := prev.Distance(hash)
	if err != nil {
		d.last[r] = hash
		return false
	}
	if dist <= d.maxDistance {
		slog.Debug("region unchanged", "region", r, "distance", dist)
		return true
	}

	d.last[r] = hash
	return false
}

// SetMaxDistance changes the tolerance for later comparisons.
func (d *Detector) SetMaxDistance(n int) {
	d.mu.Lock()
	d.maxDistance = n
	d.mu.Unlock()
}

// Forget drops all stored hashes.
func (d *Detector) Forget() {
	d.mu.Lock()
	clear(d.last)
	d.mu.Unlock()
}
