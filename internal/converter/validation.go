package converter

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
)

var (
	// ErrInvalidImage is returned for input that cannot be decoded
	ErrInvalidImage = errors.New("invalid or unsupported image")
	// ErrFileTooLarge is returned when the file exceeds the size limit
	ErrFileTooLarge = errors.New("file size exceeds limit")
	// ErrInvalidImageDimensions is returned when image dimensions are invalid
	ErrInvalidImageDimensions = errors.New("invalid image dimensions")
	// ErrImageTooLarge is returned when image dimensions exceed limits
	ErrImageTooLarge = errors.New("image dimensions exceed maximum allowed")
)

// Validation limits
const (
	DefaultMaxFileSize = 20 * 1024 * 1024 // 20MB
	MaxImageWidth      = 20000
	MaxImageHeight     = 20000
	MaxImagePixels     = 250_000_000 // decompression bomb guard
	minHeaderSize      = 12          // enough to sniff any supported format
)

// ValidateFile checks the encoded input size before any decoding.
func ValidateFile(data []byte, maxSize int64) error {
	if maxSize > 0 && int64(len(data)) > maxSize {
		slog.Debug("file too large", "size", len(data), "max", maxSize)
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), maxSize)
	}
	if len(data) < minHeaderSize {
		return fmt.Errorf("%w: %d bytes is too short", ErrInvalidImage, len(data))
	}
	return nil
}

// ValidateImage checks decoded image dimensions are within acceptable limits
func ValidateImage(img image.Image) error {
	if img == nil {
		return ErrInvalidImage
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, width, height)
	}
	if width > MaxImageWidth || height > MaxImageHeight {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrImageTooLarge, width, height, MaxImageWidth, MaxImageHeight)
	}
	if pixels := int64(width) * int64(height); pixels > MaxImagePixels {
		return fmt.Errorf("%w: %d pixels (max %d)", ErrImageTooLarge, pixels, MaxImagePixels)
	}
	return nil
}
