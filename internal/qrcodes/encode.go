package qrcodes

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"strings"

	qrc "github.com/skip2/go-qrcode"
)

// Render defaults
const (
	DefaultSize   = 256
	DefaultMargin = 2
)

// RenderOptions controls how a QR code image is produced
type RenderOptions struct {
	Size   int    // output width/height in pixels
	Margin int    // quiet zone in modules
	Dark   string // hex color of the modules
	Light  string // hex color of the background
}

// DefaultRenderOptions returns the standard black-on-white 256px rendering
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Size:   DefaultSize,
		Margin: DefaultMargin,
		Dark:   "#000000",
		Light:  "#FFFFFF",
	}
}

func (o RenderOptions) normalized() RenderOptions {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Margin < 0 {
		o.Margin = DefaultMargin
	}
	if o.Dark == "" {
		o.Dark = "#000000"
	}
	if o.Light == "" {
		o.Light = "#FFFFFF"
	}
	return o
}

// TrackingURL builds the public redirect URL encoded into a tracked QR code
func TrackingURL(baseURL string, id uint) string {
	return fmt.Sprintf("%s/s/%d", strings.TrimRight(baseURL, "/"), id)
}

// EncodePNGDataURI renders the content as a PNG and returns it as a data URI
// suitable for an <img> src attribute.
func EncodePNGDataURI(content string, opts RenderOptions) (string, error) {
	opts = opts.normalized()

	q, err := qrc.New(content, qrc.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	q.ForegroundColor, err = parseHexColor(opts.Dark)
	if err != nil {
		return "", err
	}
	q.BackgroundColor, err = parseHexColor(opts.Light)
	if err != nil {
		return "", err
	}
	if opts.Margin == 0 {
		q.DisableBorder = true
	}

	png, err := q.PNG(opts.Size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EncodeSVG renders the content as a standalone SVG document
func EncodeSVG(content string, opts RenderOptions) (string, error) {
	opts = opts.normalized()

	q, err := qrc.New(content, qrc.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	q.DisableBorder = true

	bitmap := q.Bitmap()
	modules := len(bitmap)
	total := modules + 2*opts.Margin

	var sb strings.Builder
	fmt.Fprintf(&sb,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		opts.Size, opts.Size, total, total)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="%s"/>`, total, total, opts.Light)
	fmt.Fprintf(&sb, `<path fill="%s" d="`, opts.Dark)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&sb, "M%d %dh1v1h-1z", x+opts.Margin, y+opts.Margin)
			}
		}
	}
	sb.WriteString(`"/></svg>`)
	return sb.String(), nil
}

// parseHexColor parses #RGB and #RRGGBB hex colors
func parseHexColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(s, "#")
	var r, g, b uint8
	switch len(s) {
	case 3:
		if _, err := fmt.Sscanf(s, "%1x%1x%1x", &r, &g, &b); err != nil {
			return nil, fmt.Errorf("invalid color: #%s", s)
		}
		r, g, b = r*17, g*17, b*17
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return nil, fmt.Errorf("invalid color: #%s", s)
		}
	default:
		return nil, fmt.Errorf("invalid color: #%s", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
