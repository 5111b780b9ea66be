// Package storage keeps uploaded boleto files.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

const DefaultMaxBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("only PDF, JPEG and PNG files are accepted")
	ErrTooLarge        = errors.New("file too large")
	ErrNotFound        = errors.New("file not found")
	ErrInvalidRef      = errors.New("invalid file reference")
)

var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

type Object struct {
	Ref         string `json:"ref"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (Object, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Inspect reads at most maxBytes from r and checks the content is an
// accepted type.
func Inspect(r io.Reader, maxBytes int64) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	kind, _ := filetype.Match(data)
	if _, ok := allowedTypes[kind.MIME.Value]; !ok {
		return nil, "", ErrUnsupportedType
	}
	return data, kind.MIME.Value, nil
}

// objectKey builds a unique, date-prefixed key that keeps the original base
// name readable.
func objectKey(name, contentType string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(base)
	stem := sanitize(strings.TrimSuffix(base, ext))
	if stem == "" {
		stem = "boleto"
	}
	if want := allowedTypes[contentType]; want != "" && !strings.EqualFold(ext, want) && !(want == ".jpg" && strings.EqualFold(ext, ".jpeg")) {
		ext = want
	}
	return fmt.Sprintf("%s/%s_%s%s", now.UTC().Format("2006/01"), stem, uuid.NewString()[:8], strings.ToLower(ext))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// cleanRef rejects references escaping the storage root.
func cleanRef(ref string) (string, error) {
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return "", ErrInvalidRef
	}
	clean := path.Clean(ref)
	if clean == "." || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return "", ErrInvalidRef
	}
	return clean, nil
}

func newObject(key, contentType string, data []byte) Object {
	return Object{Ref: key, ContentType: contentType, Size: int64(len(data))}
}

func reader(data []byte) *bytes.Reader { return bytes.NewReader(data) }
