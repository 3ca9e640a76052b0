package converter

import (
	"bytes"
	"encoding/binary"

	"github.com/adrium/goheif"
	"github.com/chai2010/webp"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
)

// metadata is the EXIF and XMP carried from the source when
// PreserveMetadata is set. Exif starts at the TIFF header.
type metadata struct {
	exif []byte
	xmp  []byte
}

// extractMetadata reads EXIF and XMP from JPEG, HEIF and WebP sources.
// Missing or malformed metadata yields empty blobs; it never fails the
// conversion. Returned slices do not alias data.
func extractMetadata(data []byte, format avif.ImageFormat) metadata {
	var m metadata
	switch format {
	case avif.FormatJPEG:
		m = jpegMetadata(data)
		// decode applied the orientation to the pixels
		m.exif = uprightExif(m.exif)
	case avif.FormatHEIF:
		if exif, err := goheif.ExtractExif(bytes.NewReader(data)); err == nil {
			m.exif = bytes.TrimPrefix(exif, []byte(codec.JPEGExifHeader))
		}
	case avif.FormatWebP:
		if exif, err := webp.GetMetadata(data, "EXIF"); err == nil {
			m.exif = exif
		}
		if xmp, err := webp.GetMetadata(data, "XMP"); err == nil {
			m.xmp = xmp
		}
	}
	return metadata{exif: clone(m.exif), xmp: clone(m.xmp)}
}

// jpegMetadata walks the marker segments before the scan data and returns
// the first APP1 EXIF and XMP payloads.
func jpegMetadata(data []byte) metadata {
	var m metadata
	i := 2 // SOI
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF: // fill byte
			i++
			continue
		case marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			i += 2
			continue
		case marker == 0xDA || marker == 0xD9:
			return m
		}

		n := int(binary.BigEndian.Uint16(data[i+2:]))
		if n < 2 || i+2+n > len(data) {
			return m
		}
		seg := data[i+4 : i+2+n]
		if marker == 0xE1 {
			switch {
			case m.exif == nil && bytes.HasPrefix(seg, []byte(codec.JPEGExifHeader)):
				m.exif = seg[len(codec.JPEGExifHeader):]
			case m.xmp == nil && bytes.HasPrefix(seg, []byte(codec.JPEGXMPHeader)):
				m.xmp = seg[len(codec.JPEGXMPHeader):]
			}
		}
		i += 2 + n
	}
	return m
}

const (
	tagOrientation = 0x0112
	typeShort      = 3
)

// uprightExif returns a copy of exif with the IFD0 orientation set to 1
// (top-left). exif is returned unchanged when it has no such entry or
// cannot be parsed.
func uprightExif(exif []byte) []byte {
	if len(exif) < 8 {
		return exif
	}
	var order binary.ByteOrder
	switch string(exif[:4]) {
	case "II*\x00":
		order = binary.LittleEndian
	case "MM\x00*":
		order = binary.BigEndian
	default:
		return exif
	}

	ifd := int(order.Uint32(exif[4:]))
	if ifd < 8 || ifd+2 > len(exif) {
		return exif
	}
	count := int(order.Uint16(exif[ifd:]))
	for e := 0; e < count; e++ {
		off := ifd + 2 + e*12
		if off+12 > len(exif) {
			return exif
		}
		if order.Uint16(exif[off:]) != tagOrientation || order.Uint16(exif[off+2:]) != typeShort {
			continue
		}
		if order.Uint16(exif[off+8:]) == 1 {
			return exif
		}
		out := clone(exif)
		order.PutUint16(out[off+8:], 1)
		return out
	}
	return exif
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return bytes.Clone(b)
}
