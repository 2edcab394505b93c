package qr

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 512

// PNG renders the content as a PNG QR code of size x size pixels.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	b, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: couldn't encode: %w", err)
	}
	return b, nil
}

// Text renders the content as a QR code made of unicode blocks, suitable for
// terminals.
func Text(content string) (string, error) {
	if content == "" {
		return "", errors.New("qr: empty content")
	}
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr: couldn't encode: %w", err)
	}
	return q.ToSmallString(false), nil
}
