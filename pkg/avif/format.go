package avif

import (
	"bytes"
	"path/filepath"
	"strings"
)

// ImageFormat is a coarse container/codec classification of input data.
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatAVIF    ImageFormat = "avif"
	FormatBMP     ImageFormat = "bmp"
	FormatGIF     ImageFormat = "gif"
	FormatHEIF    ImageFormat = "heif"
	FormatTIFF    ImageFormat = "tiff"
	FormatUnknown ImageFormat = "unknown"
)

var avifSignature = []byte("ftypavif")

// IsAVIF reports whether data starts with an ISOBMFF ftyp box of brand "avif".
func IsAVIF(data []byte) bool {
	return len(data) > 12 && bytes.Equal(data[4:12], avifSignature)
}

// DetectFormat sniffs the format from magic bytes.
func DetectFormat(data []byte) ImageFormat {
	if len(data) < 12 {
		return FormatUnknown
	}
	switch {
	case IsAVIF(data):
		return FormatAVIF
	case data[0] == 0xFF && data[1] == 0xD8:
		return FormatJPEG
	case data[0] == 0x89 && data[1] == 0x50:
		return FormatPNG
	case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	case string(data[0:4]) == "GIF8":
		return FormatGIF
	case data[0] == 'B' && data[1] == 'M':
		return FormatBMP
	case string(data[0:4]) == "II*\x00" || string(data[0:4]) == "MM\x00*":
		return FormatTIFF
	case isHEIF(data):
		return FormatHEIF
	}
	return FormatUnknown
}

// isHEIF checks for an ftyp box with one of the HEIF image brands.
func isHEIF(data []byte) bool {
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := strings.ToLower(string(data[8:12]))
	switch brand {
	case "heic", "heix", "heim", "heis", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}

// FormatFromPath classifies by file extension.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "avif":
		return FormatAVIF
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "bmp":
		return FormatBMP
	case "gif":
		return FormatGIF
	case "heif", "heic":
		return FormatHEIF
	case "tif", "tiff":
		return FormatTIFF
	}
	return FormatUnknown
}

// MIMEType returns the media type for f, or application/octet-stream.
func (f ImageFormat) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatBMP:
		return "image/bmp"
	case FormatGIF:
		return "image/gif"
	case FormatHEIF:
		return "image/heif"
	case FormatTIFF:
		return "image/tiff"
	}
	return "application/octet-stream"
}
