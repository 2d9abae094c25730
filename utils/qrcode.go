package utils

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodePNG renders a PIX payment code as a PNG and returns it base64-encoded
// for inline display on the checkout page. Error correction level Low keeps
// the image small; copia-e-cola payloads are already redundant.
func QRCodePNG(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Low, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
