// Package testpdf generates small PDF fixtures with gofpdf for tests across
// the module.
package testpdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// Line is text drawn with its baseline at (X, Y), measured in points from
// the top-left corner as gofpdf does.
type Line struct {
	X, Y float64
	Text string
	Font string // core font family, default Helvetica
	Size float64
}

// Image is a solid PNG placed at (X, Y) from the top-left with size W x H.
type Image struct {
	X, Y, W, H float64
}

type Page struct {
	Lines  []Line
	Images []Image
}

type Options struct {
	NoCompression bool
	Protect       bool
	UserPassword  string
	OwnerPassword string
	Title         string
	Author        string
}

// Build renders pages on A4 and returns the file bytes.
func Build(t testing.TB, pages []Page, opts Options) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(!opts.NoCompression)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, false)
	}
	if opts.Author != "" {
		pdf.SetAuthor(opts.Author, false)
	}
	if opts.Protect {
		pdf.SetProtection(gofpdf.CnProtectPrint, opts.UserPassword, opts.OwnerPassword)
	}
	imgs := 0
	for _, p := range pages {
		pdf.AddPage()
		for _, l := range p.Lines {
			family, size := l.Font, l.Size
			if family == "" {
				family = "Helvetica"
			}
			if size == 0 {
				size = 12
			}
			pdf.SetFont(family, "", size)
			pdf.Text(l.X, l.Y, l.Text)
		}
		for _, im := range p.Images {
			name := fmt.Sprintf("img%d", imgs)
			imgs++
			pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(solidPNG(t, imgs)))
			pdf.ImageOptions(name, im.X, im.Y, im.W, im.H, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("generate fixture: %v", err)
	}
	return buf.Bytes()
}

func solidPNG(t testing.TB, seed int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := color.RGBA{R: uint8(40 * seed), G: 120, B: 200, A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// ContactDocument is three pages of text with an e-mail address on the
// first page.
func ContactDocument(t testing.TB) []byte {
	t.Helper()
	return Build(t, []Page{
		{Lines: []Line{
			{X: 72, Y: 100, Text: "Quarterly summary"},
			{X: 72, Y: 130, Text: "Contact: jane@example.com or 555-0100"},
			{X: 72, Y: 160, Text: "All figures are unaudited."},
		}},
		{Lines: []Line{{X: 72, Y: 100, Text: "Page two has no personal data."}}},
		{Lines: []Line{{X: 72, Y: 100, Text: "Closing remarks on page three."}}},
	}, Options{Title: "Summary", Author: "Finance"})
}

// ImageDocument has text on page one and a 100x80pt image at (100,100) on
// page two.
func ImageDocument(t testing.TB) []byte {
	t.Helper()
	return Build(t, []Page{
		{Lines: []Line{{X: 72, Y: 100, Text: "Cover page"}}},
		{
			Lines:  []Line{{X: 72, Y: 300, Text: "Figure caption below the photo"}},
			Images: []Image{{X: 100, Y: 100, W: 100, H: 80}},
		},
	}, Options{})
}
