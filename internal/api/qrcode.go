package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// QRGenerator renders the admin dashboard's URL as a QR code, so an
// operator can point a phone at the terminal on daemon startup instead
// of retyping a LAN address.
type QRGenerator struct {
	size int
}

// NewQRGenerator creates a generator sized for on-screen PNG use.
func NewQRGenerator() *QRGenerator {
	return &QRGenerator{size: 256}
}

// GeneratePNG generates a QR code as PNG bytes.
func (g *QRGenerator) GeneratePNG(data string) ([]byte, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(g.size)); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateBase64 generates a QR code as a base64 PNG data URL, for the
// dashboard's own "scan to open" widget.
func (g *QRGenerator) GenerateBase64(data string) (string, error) {
	pngBytes, err := g.GeneratePNG(data)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes), nil
}

// GenerateTerminal renders data as a block-character QR code suitable
// for printing directly to a terminal at daemon startup.
func (g *QRGenerator) GenerateTerminal(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	bitmap := qr.Bitmap()
	var out bytes.Buffer
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := false
			if y+1 < len(bitmap) {
				bottom = bitmap[y+1][x]
			}
			out.WriteString(blockFor(top, bottom))
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}

// blockFor picks the half-height Unicode block character representing
// one column of two vertically-stacked QR modules.
func blockFor(top, bottom bool) string {
	switch {
	case top && bottom:
		return "█"
	case top && !bottom:
		return "▀"
	case !top && bottom:
		return "▄"
	default:
		return " "
	}
}
