package draw

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"go-fraud-visuals-ui/internal/viz"
)

// Snapshot export layout.
const (
	SnapshotWidth    = 900
	SnapshotHeight   = 520
	SnapshotTitle    = "Market Fraud Detection - Visual Snapshot"
	SnapshotFilename = "fraud-visuals.png"

	cardWidth   = 400.0
	cardHeight  = 300.0
	cardRadius  = 16.0
	cardTop     = 120.0
	cardScale   = 1.8
	captionX    = 32
	captionY    = 68
	noSummary   = "Summary: --"
	leftCardX   = 32.0
	rightCardX  = 468.0
	chartInsetX = 20.0
	chartInsetY = 50.0
)

// Snapshot renders the downloadable dashboard image: a title, the summary caption and two
// cards holding the risk trend and the alerts mix.
func Snapshot(state viz.ViewState, caption string, theme Theme) ([]byte, error) {
	r, err := chart.PNG(SnapshotWidth, SnapshotHeight)
	if err != nil {
		return nil, fmt.Errorf("create snapshot renderer: %w", err)
	}
	c := NewCanvas(r, theme, 1, 0, 0)
	c.FillRect(0, 0, SnapshotWidth, SnapshotHeight, 0, themeColor(theme.Background))
	c.FillRect(0, 0, SnapshotWidth, SnapshotHeight/2, 0, themeColor("rgba(40, 70, 140, 0.2)"))
	c.Text(SnapshotTitle, 32, 42, 22, "", themeColor(theme.Text))

	cards := []struct {
		x     float64
		label string
		chart viz.ChartType
	}{
		{leftCardX, "RISK TREND", viz.ChartLine},
		{rightCardX, "ALERTS MIX", viz.ChartPie},
	}
	for _, card := range cards {
		c.FillRect(card.x, cardTop, cardWidth, cardHeight, cardRadius, themeColor(theme.Surface))
		c.StrokeRect(card.x, cardTop, cardWidth, cardHeight, cardRadius, 1, themeColor("rgba(70, 140, 255, 0.2)"))
		c.Text(card.label, card.x+20, cardTop+28, 12, "", themeColor("rgba(214, 226, 248, 0.7)"))

		scene := viz.Render(card.chart, state)
		sub := NewCanvas(r, theme, cardScale, card.x+chartInsetX, cardTop+chartInsetY)
		sub.Draw(scene)
	}

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if strings.TrimSpace(caption) == "" {
		caption = noSummary
	}
	out := stampCaption(img, caption, captionX, captionY)

	var final bytes.Buffer
	if err := png.Encode(&final, out); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return final.Bytes(), nil
}

// stampCaption writes one line of text in the 7x13 bitmap face.
func stampCaption(img image.Image, text string, x, y int) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	stddraw.Draw(rgba, b, img, b.Min, stddraw.Src)

	face := basicfont.Face7x13
	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.RGBA{R: 214, G: 226, B: 248, A: 200}),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(b.Min.X + x), Y: fixed.I(b.Min.Y + y)},
	}
	dr.DrawString(text)
	return rgba
}
