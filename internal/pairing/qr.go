package pairing

import (
	"encoding/base64"
	"strings"

	"github.com/skip2/go-qrcode"
)

const pngPrefix = "data:image/png;base64,"

// NormalizeQR turns a gateway pairing payload into an image data URI. Data
// URIs pass through, bare base64 PNGs get a prefix, and anything else is
// treated as the raw code and rendered.
func NormalizeQR(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	switch {
	case payload == "":
		return "", nil
	case strings.HasPrefix(payload, "data:image/"):
		return payload, nil
	case strings.HasPrefix(payload, "iVBORw0KGgo"):
		return pngPrefix + payload, nil
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(png), nil
}
