// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging validates and normalizes uploaded book cover pictures.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	_ "image/gif"               // GIF decoder
	_ "image/png"               // PNG decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// Errors surfaced to the upload form.
var (
	ErrTooLarge   = errors.New("cover picture is too large")
	ErrBadFormat  = errors.New("unsupported cover picture format")
	ErrNotAnImage = errors.New("cover picture is not a valid image")
)

// MaxCoverWidth is the width covers are downscaled to when wider.
const MaxCoverWidth = 600

// allowedExtensions mirrors the upload form's accept list.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Processor validates and normalizes cover uploads.
type Processor struct {
	maxBytes int64
}

// NewProcessor creates a cover processor enforcing the given byte limit on
// the uploaded file.
func NewProcessor(maxBytes int64) *Processor {
	return &Processor{maxBytes: maxBytes}
}

// Process reads an uploaded cover, validates extension, size and content,
// downscales oversized images and returns the blob to store (JPEG-encoded).
func (p *Processor) Process(r io.Reader, filename string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, ErrBadFormat
	}

	// Read one byte past the limit to detect oversized uploads without
	// buffering them fully.
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading cover upload: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, ErrTooLarge
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNotAnImage
	}

	if img.Bounds().Dx() > MaxCoverWidth {
		img = imaging.Resize(img, MaxCoverWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encoding cover: %w", err)
	}

	if int64(buf.Len()) > p.maxBytes {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}
