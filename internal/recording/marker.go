package recording

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

var (
	okColor   = color.RGBA{52, 168, 83, 255}
	failColor = color.RGBA{234, 67, 53, 255}
)

// markerRadius is relative to the frame width so markers stay visible
// after the GIF is scaled down.
func markerRadius(width int) int {
	return max(8, width/40)
}

// annotate copies frame and draws a tap marker at p (frame coordinates).
func annotate(frame image.Image, p *image.Point, ok bool) *image.RGBA {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)
	if p == nil {
		return result
	}
	c := okColor
	if !ok {
		c = failColor
	}
	at := p.Add(bounds.Min)
	r := markerRadius(bounds.Dx())
	drawRing(result, at.X, at.Y, r, 3, c)
	drawCross(result, at.X, at.Y, r/2, c)
	return result
}

// drawRing draws a circle outline of the given thickness
func drawRing(img *image.RGBA, x, y, radius, thickness int, c color.RGBA) {
	for t := 0; t < thickness; t++ {
		rr := float64(radius - t)
		for angle := 0.0; angle < 360; angle += 0.5 {
			rad := angle * math.Pi / 180
			setPixelSafe(img, x+int(math.Round(rr*math.Cos(rad))), y+int(math.Round(rr*math.Sin(rad))), c)
		}
	}
}

func drawCross(img *image.RGBA, x, y, half int, c color.RGBA) {
	for d := -half; d <= half; d++ {
		setPixelSafe(img, x+d, y, c)
		setPixelSafe(img, x, y+d, c)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
