package media

import (
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PlaceholderTextLimit is how many characters of the title are drawn
const PlaceholderTextLimit = 20

var (
	placeholderBackground = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	placeholderForeground = color.White
)

// RenderPlaceholder writes a dark JPEG of the given size with the title centered on it
func RenderPlaceholder(w io.Writer, title string, width, height, quality int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBackground}, image.Point{}, draw.Src)

	text := placeholderText(title)
	if text != "" {
		face := basicfont.Face7x13
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(placeholderForeground),
			Face: face,
		}
		textWidth := drawer.MeasureString(text).Ceil()
		metrics := face.Metrics()
		textHeight := (metrics.Ascent + metrics.Descent).Ceil()

		x := (width - textWidth) / 2
		if x < 0 {
			x = 0
		}
		y := (height-textHeight)/2 + metrics.Ascent.Ceil()
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(text)
	}

	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// placeholderText trims the title to its first PlaceholderTextLimit characters
func placeholderText(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= PlaceholderTextLimit {
		return title
	}
	return string([]rune(title)[:PlaceholderTextLimit])
}
