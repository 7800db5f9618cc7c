// Package draw turns viz scenes into SVG markup and PNG images.
package draw

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"go-fraud-visuals-ui/internal/viz"
)

// Theme maps the --viz-* paint variables to concrete colours. Keys in Colors are the
// variable names without the "--viz-" prefix, e.g. "line" or "alert".
type Theme struct {
	Name       string            `toml:"name"`
	Background string            `toml:"background"`
	Surface    string            `toml:"surface"`
	Text       string            `toml:"text"`
	Colors     map[string]string `toml:"colors"`
}

// DefaultTheme is the dark dashboard palette.
func DefaultTheme() Theme {
	return Theme{
		Name:       "midnight",
		Background: "#0a0f18",
		Surface:    "rgba(9, 15, 26, 0.8)",
		Text:       "#e7eefc",
		Colors: map[string]string{
			"grid":      "rgba(120, 160, 220, 0.18)",
			"line":      "#59c2ff",
			"line-glow": "rgba(89, 194, 255, 0.25)",
			"alert":     "#ff7a59",
			"safe":      "#5fd2a8",
			"muted":     "#5b6b85",
			"warn":      "#ffd666",
		},
	}
}

// LoadTheme reads a TOML palette file and layers it over DefaultTheme.
func LoadTheme(path string) (Theme, error) {
	theme := DefaultTheme()
	if path == "" {
		return theme, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied theme path
	if err != nil {
		return theme, fmt.Errorf("read theme: %w", err)
	}
	var file Theme
	if err := toml.Unmarshal(data, &file); err != nil {
		return theme, fmt.Errorf("parse theme: %w", err)
	}
	if file.Name != "" {
		theme.Name = file.Name
	}
	if file.Background != "" {
		theme.Background = file.Background
	}
	if file.Surface != "" {
		theme.Surface = file.Surface
	}
	if file.Text != "" {
		theme.Text = file.Text
	}
	for k, v := range file.Colors {
		if _, err := ParseColor(v); err != nil {
			return theme, fmt.Errorf("theme colour %q: %w", k, err)
		}
		theme.Colors[strings.TrimPrefix(k, "--viz-")] = v
	}
	return theme, nil
}

// Resolve returns the CSS colour for a paint. Literal paints pass through unchanged.
func (t Theme) Resolve(p viz.Paint) string {
	if !p.IsVar() {
		return string(p)
	}
	if v, ok := t.Colors[strings.TrimPrefix(string(p), "--viz-")]; ok {
		return v
	}
	return "#888888"
}

// Color resolves a paint to an RGBA colour.
func (t Theme) Color(p viz.Paint) drawing.Color {
	c, err := ParseColor(t.Resolve(p))
	if err != nil {
		return drawing.ColorTransparent
	}
	return c
}

// CSSVars renders the palette as custom property declarations for a :root rule.
func (t Theme) CSSVars() string {
	keys := make([]string, 0, len(t.Colors))
	for k := range t.Colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "--viz-%s: %s; ", k, t.Colors[k])
	}
	return strings.TrimSpace(b.String())
}

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa, rgb(r, g, b) and rgba(r, g, b, a).
func ParseColor(s string) (drawing.Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case strings.HasPrefix(s, "#"):
		hex := s[1:]
		switch len(hex) {
		case 3:
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		case 6:
		case 8:
			a, err := strconv.ParseUint(hex[6:], 16, 8)
			if err != nil {
				return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
			}
			c, err := parseHex6(hex[:6])
			if err != nil {
				return drawing.Color{}, err
			}
			c.A = uint8(a)
			return c, nil
		default:
			return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
		}
		return parseHex6(hex)
	case strings.HasPrefix(s, "rgba(") || strings.HasPrefix(s, "rgb("):
		open := strings.IndexByte(s, '(')
		if !strings.HasSuffix(s, ")") {
			return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
		}
		parts := strings.Split(s[open+1:len(s)-1], ",")
		if len(parts) != 3 && len(parts) != 4 {
			return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
		}
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || v < 0 || v > 255 {
				return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
			}
			rgb[i] = uint8(v)
		}
		alpha := uint8(255)
		if len(parts) == 4 {
			f, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil || f < 0 || f > 1 {
				return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
			}
			alpha = uint8(f*255 + 0.5)
		}
		return drawing.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}, nil
	}
	return drawing.Color{}, fmt.Errorf("invalid colour %q", s)
}

func parseHex6(hex string) (drawing.Color, error) {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return drawing.Color{}, fmt.Errorf("invalid colour #%s", hex)
	}
	return drawing.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
