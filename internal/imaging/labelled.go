package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

var markerRGBA = map[string]color.NRGBA{
	"red":    {R: 220, G: 38, B: 38, A: 255},
	"green":  {R: 22, G: 163, B: 74, A: 255},
	"blue":   {R: 37, G: 99, B: 235, A: 255},
	"purple": {R: 147, G: 51, B: 234, A: 255},
	"orange": {R: 234, G: 88, B: 12, A: 255},
}

var labelFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gobold.TTF)
})

// MarkerRGBA returns the fill used for a marker color name.
func MarkerRGBA(name string) color.NRGBA {
	if c, ok := markerRGBA[name]; ok {
		return c
	}
	return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
}

// MarkerRadius is the circle radius used for an image of the given size.
func MarkerRadius(w, h int) float64 {
	return math.Max(14, float64(min(w, h))/28)
}

// RenderLabelled draws each marker as a numbered colored circle over the base
// image and returns the result as PNG.
func RenderLabelled(base []byte, markers []domain.Marker) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, domain.InvalidInput("base image is not a decodable image: %v", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dc := gg.NewContextForImage(img)
	r := MarkerRadius(w, h)

	f, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("load label font: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{
		Size:    r,
		DPI:     72,
		Hinting: font.HintingNone,
	}))

	for i, m := range markers {
		x := m.Position.X * float64(w)
		y := m.Position.Y * float64(h)

		dc.DrawCircle(x, y, r)
		dc.SetColor(MarkerRGBA(m.Color))
		dc.FillPreserve()
		dc.SetColor(color.White)
		dc.SetLineWidth(3)
		dc.Stroke()

		dc.DrawStringAnchored(strconv.Itoa(i+1), x, y, 0.5, 0.35)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
