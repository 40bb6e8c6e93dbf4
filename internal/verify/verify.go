// Package verify judges whether a dispatched action visibly changed the
// device surface by sampling a grid of pixels from before/after frames.
package verify

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/v0xg/stepdroid/internal/action"
)

const (
	// DefaultThreshold is the similarity below which a surface counts as changed
	DefaultThreshold = 0.95

	gridDivisions   = 20
	samePointCutoff = 30
	diffWeight      = 0.3

	// DegradedNote is appended to results that could not be verified
	DegradedNote = "(unable to verify effect)"
)

// Comparison is the outcome of comparing two frames
type Comparison struct {
	Similarity float64
	Changed    bool
	// Degraded is set when either frame was missing; the other fields are zero.
	Degraded bool
}

// Verifier compares frames with a fixed change threshold
type Verifier struct {
	Threshold float64
}

// New returns a Verifier; a non-positive threshold selects DefaultThreshold.
func New(threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{Threshold: threshold}
}

// Compare samples both frames and scores how similar they are.
func (v *Verifier) Compare(before, after image.Image) Comparison {
	if before == nil || after == nil {
		return Comparison{Degraded: true}
	}
	sim := Similarity(before, after)
	return Comparison{Similarity: sim, Changed: sim < v.Threshold}
}

// Similarity returns a score in [0,1]; 1 means the sampled pixels match.
func Similarity(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w := min(ab.Dx(), bb.Dx())
	h := min(ab.Dy(), bb.Dy())
	if w <= 0 || h <= 0 {
		return 0
	}
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		a = scaleTo(a, w, h)
		b = scaleTo(b, w, h)
		ab, bb = a.Bounds(), b.Bounds()
	}

	stepX := max(1, w/gridDivisions)
	stepY := max(1, h/gridDivisions)

	var samples, same int
	var totalDiff int64
	for y := 0; y < h; y += stepY {
		for x := 0; x < w; x += stepX {
			d := pixelDiff(a, b, ab.Min.X+x, ab.Min.Y+y, bb.Min.X+x, bb.Min.Y+y)
			totalDiff += int64(d)
			if d < samePointCutoff {
				same++
			}
			samples++
		}
	}

	sameRatio := float64(same) / float64(samples)
	avgDiff := float64(totalDiff) / float64(samples*3*255)
	return sameRatio * (1 - avgDiff*diffWeight)
}

func scaleTo(img image.Image, w, h int) image.Image {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	return resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
}

// pixelDiff is |dR|+|dG|+|dB| on 8-bit channels.
func pixelDiff(a, b image.Image, ax, ay, bx, by int) int {
	r1, g1, b1, _ := a.At(ax, ay).RGBA()
	r2, g2, b2, _ := b.At(bx, by).RGBA()
	return absDiff(r1>>8, r2>>8) + absDiff(g1>>8, g2>>8) + absDiff(b1>>8, b2>>8)
}

func absDiff(x, y uint32) int {
	if x > y {
		return int(x - y)
	}
	return int(y - x)
}

// ExpectsChange reports whether a successful verb should alter the surface.
func ExpectsChange(verb action.Verb) bool {
	switch verb {
	case action.VerbLaunch, action.VerbTap, action.VerbSwipe, action.VerbBack,
		action.VerbHome, action.VerbLongPress, action.VerbDoubleTap:
		return true
	}
	return false
}

// Verdict is the verified outcome of one action
type Verdict struct {
	Success    bool
	Message    string
	Similarity *float64
	Changed    *bool
}

// Judge folds a comparison into the dispatcher's basic outcome. A successful
// action that should have changed the surface but did not becomes a failure.
func Judge(verb action.Verb, success bool, message string, c Comparison) Verdict {
	if c.Degraded {
		return Verdict{Success: success, Message: annotate(message, DegradedNote)}
	}
	sim, changed := c.Similarity, c.Changed
	out := Verdict{Success: success, Message: message, Similarity: &sim, Changed: &changed}
	if success && ExpectsChange(verb) && !changed {
		out.Success = false
		out.Message = annotate(message, fmt.Sprintf("%s did not change the screen (similarity %.3f)", verb, sim))
	}
	return out
}

func annotate(message, note string) string {
	if message == "" {
		return note
	}
	return message + " " + note
}
