package channel

import (
	"encoding/base64"
	"time"

	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// Challenge is the QR payload an operator scans to pair the session.
type Challenge struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issuedAt"`
}

func (c Challenge) PNG(size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	return qrcode.Encode(c.Code, qrcode.Medium, size)
}

func (c Challenge) DataURL() (string, error) {
	png, err := c.PNG(defaultQRSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
