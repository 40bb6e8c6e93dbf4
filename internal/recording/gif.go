package recording

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"sort"

	"github.com/nfnt/resize"
)

// paletteSampleStep is the pixel stride used when building the palette.
const paletteSampleStep = 4

var errNoFrames = errors.New("no frames to encode")

// Encode writes frames as a looping GIF at fps frames per second. Frames are
// scaled to maxWidth (never upscaled) keeping the first frame's aspect ratio
// and share one palette sampled from all of them.
func Encode(w io.Writer, frames []image.Image, fps int, maxWidth uint) error {
	if len(frames) == 0 {
		return errNoFrames
	}
	if fps <= 0 {
		fps = 1
	}

	width, height := outputSize(frames[0].Bounds(), maxWidth)
	pal := buildPalette(frames)
	anim := &gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		scaled := resize.Resize(width, height, frame, resize.Lanczos3)
		out := image.NewPaletted(scaled.Bounds(), pal)
		draw.FloydSteinberg.Draw(out, out.Rect, scaled, scaled.Bounds().Min)
		anim.Image = append(anim.Image, out)
		// GIF delays are in hundredths of a second.
		anim.Delay = append(anim.Delay, 100/fps)
	}
	return gif.EncodeAll(w, anim)
}

func outputSize(b image.Rectangle, maxWidth uint) (uint, uint) {
	w := uint(b.Dx())
	if maxWidth > 0 && maxWidth < w {
		w = maxWidth
	}
	if b.Dx() == 0 {
		return w, uint(b.Dy())
	}
	return w, uint(float64(w) * float64(b.Dy()) / float64(b.Dx()))
}

// WriteFile encodes frames to path and returns the file size.
func WriteFile(path string, frames []image.Image, fps int, maxWidth uint) (int64, error) {
	if len(frames) == 0 {
		return 0, errNoFrames
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := Encode(f, frames, fps, maxWidth); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// buildPalette keeps the marker colours at fixed slots and fills the rest
// with the most frequent colours sampled across every frame.
func buildPalette(frames []image.Image) color.Palette {
	hist := map[color.RGBA]int{}
	for _, img := range frames {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y += paletteSampleStep {
			for x := b.Min.X; x < b.Max.X; x += paletteSampleStep {
				r, g, bl, _ := img.At(x, y).RGBA()
				hist[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 255}]++
			}
		}
	}
	delete(hist, okColor)
	delete(hist, failColor)

	ranked := make([]color.RGBA, 0, len(hist))
	for c := range hist {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if hist[a] != hist[b] {
			return hist[a] > hist[b]
		}
		return rgbKey(a) < rgbKey(b)
	})

	pal := color.Palette{okColor, failColor}
	for _, c := range ranked {
		if len(pal) == 256 {
			break
		}
		pal = append(pal, c)
	}
	// Pad with a grey ramp so dithering has neutral tones to work with.
	for len(pal) < 256 {
		v := uint8(len(pal))
		pal = append(pal, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	return pal
}

func rgbKey(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
