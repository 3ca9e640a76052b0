package converter

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
)

// fakeCodec produces size(quality) bytes and records what it was asked to encode.
type fakeCodec struct {
	size        func(q int) int
	err         error
	unavailable bool

	mu    sync.Mutex
	calls []codec.Params
	dims  []image.Point
	meta  []codec.Pixels // Exif and XMP only
}

func (f *fakeCodec) Name() string             { return "fake" }
func (f *fakeCodec) Format() avif.ImageFormat { return avif.FormatAVIF }
func (f *fakeCodec) Available() bool          { return !f.unavailable }

func (f *fakeCodec) Encode(ctx context.Context, px codec.Pixels, p codec.Params) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	f.dims = append(f.dims, image.Pt(px.Width, px.Height))
	f.meta = append(f.meta, codec.Pixels{Exif: px.Exif, XMP: px.XMP})
	if f.err != nil {
		return nil, f.err
	}
	n := 1000
	if f.size != nil {
		n = f.size(p.Quality)
	}
	return bytes.Repeat([]byte{byte(p.Quality)}, n), nil
}

func (f *fakeCodec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestConverter(fc *fakeCodec, opts ...Option) *Converter {
	return New(codec.NewRegistry(fc), opts...)
}

func testImage(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: alpha})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h, alpha)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h, 0xff), nil))
	return buf.Bytes()
}

// avifBytes is a minimal ftyp box followed by an ispe property.
func avifBytes(w, h uint32) []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0x18})
	b.WriteString("ftypavif")
	b.Write([]byte{0, 0, 0, 0})
	b.WriteString("avifmif1")
	b.Write([]byte{0, 0, 0, 0x14})
	b.WriteString("ispe")
	b.Write([]byte{0, 0, 0, 0})
	_ = binary.Write(&b, binary.BigEndian, w)
	_ = binary.Write(&b, binary.BigEndian, h)
	return b.Bytes()
}

func TestConvert_DirectEncode(t *testing.T) {
	fc := &fakeCodec{}
	c := newTestConverter(fc)

	res, err := c.Convert(context.Background(), BytesInput(pngBytes(t, 64, 48, 0xff)), avif.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "direct", res.Mode)
	assert.Equal(t, "fake", res.Codec)
	assert.Equal(t, avif.FormatPNG, res.InputFormat)
	assert.True(t, res.TargetMet)
	assert.False(t, res.Fallback)
	assert.Equal(t, 64, res.Width)
	assert.Equal(t, 48, res.Height)
	assert.NotEmpty(t, res.ID.String())
	assert.Len(t, res.ETag(), 18)
	assert.Equal(t, 75, fc.calls[0].Quality)
}

func TestConvert_SmartSearch(t *testing.T) {
	fc := &fakeCodec{size: func(q int) int { return q * 3000 }}
	c := newTestConverter(fc)

	opts, err := avif.NewOptions(avif.MaxSize(200000))
	require.NoError(t, err)

	res, err := c.Convert(context.Background(), BytesInput(jpegBytes(t, 32, 32)), opts)
	require.NoError(t, err)

	assert.Equal(t, 66, res.Options.Quality)
	assert.Equal(t, 198000, res.Size())
	assert.LessOrEqual(t, res.Attempts, 8)
	assert.Equal(t, res.Attempts, fc.callCount())
	assert.True(t, res.TargetMet)
	assert.Equal(t, "smart", res.Mode)
}

func TestConvert_StrictFallbackOverTarget(t *testing.T) {
	fc := &fakeCodec{size: func(int) int { return 10000 }}
	c := newTestConverter(fc)

	opts, err := avif.NewOptions(avif.MaxSize(100), avif.Strategy(avif.Strict))
	require.NoError(t, err)

	res, err := c.Convert(context.Background(), BytesInput(jpegBytes(t, 32, 32)), opts)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.False(t, res.TargetMet)
	assert.Equal(t, 11, res.Attempts)
	assert.Equal(t, "strict", res.Mode)
	assert.Equal(t, avif.FallbackOptions().Quality, res.Options.Quality)
}

func TestConvert_Passthrough(t *testing.T) {
	fc := &fakeCodec{}
	c := newTestConverter(fc)
	in := avifBytes(640, 480)

	res, err := c.Convert(context.Background(), BytesInput(in), avif.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.Passthrough)
	assert.Equal(t, in, res.Data)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, 0, fc.callCount())
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
	assert.Equal(t, "passthrough", res.Mode)
}

func TestConvert_PassthroughWithoutCodec(t *testing.T) {
	c := newTestConverter(&fakeCodec{unavailable: true})

	res, err := c.Convert(context.Background(), BytesInput(avifBytes(8, 8)), avif.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Passthrough)
}

func TestConvert_NoCodec(t *testing.T) {
	c := newTestConverter(&fakeCodec{unavailable: true})

	_, err := c.Convert(context.Background(), BytesInput(pngBytes(t, 8, 8, 0xff)), avif.DefaultOptions())
	assert.ErrorIs(t, err, codec.ErrUnavailable)
}

func TestConvert_InvalidOptions(t *testing.T) {
	fc := &fakeCodec{}
	c := newTestConverter(fc)

	opts := avif.DefaultOptions()
	opts.Quality = 101
	_, err := c.Convert(context.Background(), BytesInput(pngBytes(t, 8, 8, 0xff)), opts)

	require.ErrorIs(t, err, avif.ErrInvalidParameter)
	var pe *avif.ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "quality", pe.Field)
	assert.Equal(t, 0, fc.callCount())
}

func TestConvert_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		maxSize int64
		wantErr error
	}{
		{"empty", BytesInput(nil), 0, ErrInvalidImage},
		{"garbage", BytesInput([]byte("definitely not an image")), 0, ErrInvalidImage},
		{"nil", nil, 0, ErrInvalidImage},
		{"nil image", ImageInput{}, 0, ErrInvalidImage},
		{"too large", BytesInput(make([]byte, 64)), 32, ErrFileTooLarge},
		{"missing file", PathInput(filepath.Join(t.TempDir(), "nope.png")), 0, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConverter(&fakeCodec{}, WithMaxFileSize(tt.maxSize))
			_, err := c.Convert(context.Background(), tt.input, avif.DefaultOptions())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConvert_PathInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 20, 10, 0xff), 0o644))

	c := newTestConverter(&fakeCodec{})
	res, err := c.Convert(context.Background(), PathInput(path), avif.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, avif.FormatPNG, res.InputFormat)
	assert.Equal(t, 20, res.Width)
}

func TestConvert_ImageInput(t *testing.T) {
	fc := &fakeCodec{}
	c := newTestConverter(fc)

	res, err := c.Convert(context.Background(), ImageInput{Image: testImage(30, 40, 0xff)}, avif.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, avif.FormatUnknown, res.InputFormat)
	assert.Equal(t, image.Pt(30, 40), fc.dims[0])
}

func TestConvert_MaxDimension(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		maxDim int
		want   image.Point
	}{
		{"landscape", 400, 200, 100, image.Pt(100, 50)},
		{"portrait", 200, 400, 100, image.Pt(50, 100)},
		{"never upscales", 60, 40, 100, image.Pt(60, 40)},
		{"thin edge floors at one", 1000, 2, 100, image.Pt(100, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCodec{}
			c := newTestConverter(fc)
			opts, err := avif.NewOptions(avif.MaxDimension(tt.maxDim))
			require.NoError(t, err)

			res, err := c.Convert(context.Background(), ImageInput{Image: testImage(tt.w, tt.h, 0xff)}, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fc.dims[0])
			assert.Equal(t, tt.want, image.Pt(res.Width, res.Height))
		})
	}
}

func TestConvert_ResizeMemoisedAcrossAttempts(t *testing.T) {
	fc := &fakeCodec{size: func(q int) int { return q * 3000 }}
	enc := newCodecEncoder(fc, metadata{})
	img := testImage(300, 100, 0xff)
	opts := avif.DefaultOptions()
	opts.MaxDimension = avif.Int(150)

	for i := 0; i < 3; i++ {
		_, err := enc.Encode(context.Background(), img, opts.WithQuality(60+i))
		require.NoError(t, err)
	}
	assert.Len(t, enc.resized, 1)
	assert.Equal(t, image.Pt(150, 50), fc.dims[2])
}

func TestConvert_CacheHit(t *testing.T) {
	fc := &fakeCodec{size: func(q int) int { return q * 3000 }}
	c := newTestConverter(fc, WithCacheSize(8))
	in := BytesInput(pngBytes(t, 16, 16, 0xff))
	opts, err := avif.NewOptions(avif.MaxSize(200000))
	require.NoError(t, err)

	first, err := c.Convert(context.Background(), in, opts)
	require.NoError(t, err)
	calls := fc.callCount()

	second, err := c.Convert(context.Background(), in, opts)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.ETag(), second.ETag())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, calls, fc.callCount())
	assert.Equal(t, 1, c.cache.len())

	// different options miss
	_, err = c.Convert(context.Background(), in, opts.WithQuality(50).WithoutMaxSize())
	require.NoError(t, err)
	assert.Equal(t, calls+1, fc.callCount())
}

func TestConvert_EncoderError(t *testing.T) {
	boom := errors.New("boom")
	c := newTestConverter(&fakeCodec{err: boom})

	opts, err := avif.NewOptions(avif.MaxSize(1000))
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), BytesInput(pngBytes(t, 8, 8, 0xff)), opts)
	assert.ErrorIs(t, err, boom)
}

func TestConvert_Cancelled(t *testing.T) {
	fc := &fakeCodec{}
	c := newTestConverter(fc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Convert(ctx, BytesInput(pngBytes(t, 8, 8, 0xff)), avif.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fc.callCount())
}

func TestInfo(t *testing.T) {
	c := newTestConverter(&fakeCodec{})

	tests := []struct {
		name  string
		input Input
		want  ImageInfo
	}{
		{"png with alpha", BytesInput(pngBytes(t, 10, 20, 0x80)), ImageInfo{Width: 10, Height: 20, Format: avif.FormatPNG, HasAlpha: true}},
		{"jpeg", BytesInput(jpegBytes(t, 33, 17)), ImageInfo{Width: 33, Height: 17, Format: avif.FormatJPEG}},
		{"avif", BytesInput(avifBytes(1920, 1080)), ImageInfo{Width: 1920, Height: 1080, Format: avif.FormatAVIF}},
		{"decoded", ImageInput{Image: testImage(5, 6, 0xff)}, ImageInfo{Width: 5, Height: 6, Format: avif.FormatUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Info(tt.input)
			require.NoError(t, err)
			if b, ok := tt.input.(BytesInput); ok {
				tt.want.FileSize = int64(len(b))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfo_Invalid(t *testing.T) {
	c := newTestConverter(&fakeCodec{})

	_, err := c.Info(BytesInput([]byte("0123456789abcdef")))
	assert.ErrorIs(t, err, ErrInvalidImage)

	truncated := avifBytes(1, 1)[:30]
	_, err = c.Info(BytesInput(truncated))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h   int
		maxDim *int
		ww, wh int
	}{
		{4000, 3000, nil, 4000, 3000},
		{4000, 3000, avif.Int(1920), 1920, 1440},
		{3000, 4000, avif.Int(1920), 1440, 1920},
		{1920, 1080, avif.Int(1920), 1920, 1080},
		{100, 100, avif.Int(0), 100, 100},
	}
	for _, tt := range tests {
		w, h := fitSize(tt.w, tt.h, tt.maxDim)
		assert.Equal(t, tt.ww, w)
		assert.Equal(t, tt.wh, h)
	}
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name    string
		img     image.Image
		wantErr error
	}{
		{"ok", image.NewGray(image.Rect(0, 0, 1, 1)), nil},
		{"nil", nil, ErrInvalidImage},
		{"empty", image.NewGray(image.Rect(0, 0, 0, 10)), ErrInvalidImageDimensions},
		{"too wide", image.NewGray(image.Rect(0, 0, MaxImageWidth+1, 1)), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.img)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBufferPool(t *testing.T) {
	b := GetBuffer(100)
	assert.Equal(t, 64*1024, cap(*b))
	assert.Empty(t, *b)
	*b = append(*b, "data"...)
	PutBuffer(b)

	big := GetBuffer(30 * 1024 * 1024)
	assert.GreaterOrEqual(t, cap(*big), 30*1024*1024)
	PutBuffer(big) // not pooled, must not panic
	PutBuffer(nil)

	r, err := readPooled(bytes.NewReader([]byte("hello world")), 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), *r)
	PutBuffer(r)

	_, err = readPooled(bytes.NewReader([]byte("hi")), 5)
	assert.Error(t, err)
}

// fakeDecoder returns a fixed image for any AVIF payload.
type fakeDecoder struct {
	img         image.Image
	err         error
	unavailable bool
}

func (d *fakeDecoder) Name() string    { return "fakedec" }
func (d *fakeDecoder) Available() bool { return !d.unavailable }
func (d *fakeDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.img, nil
}

func TestDecode(t *testing.T) {
	dec := &fakeDecoder{img: testImage(30, 20, 0xff)}
	c := newTestConverter(&fakeCodec{}, WithDecoder(dec))

	t.Run("avif", func(t *testing.T) {
		img, err := c.Decode(context.Background(), BytesInput(avifBytes(30, 20)))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())
	})

	t.Run("png", func(t *testing.T) {
		img, err := c.Decode(context.Background(), BytesInput(pngBytes(t, 7, 5, 0xff)))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 7, 5), img.Bounds())
	})

	t.Run("image input", func(t *testing.T) {
		src := testImage(3, 3, 0xff)
		img, err := c.Decode(context.Background(), ImageInput{Image: src})
		require.NoError(t, err)
		assert.Same(t, src, img)

		_, err = c.Decode(context.Background(), ImageInput{})
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := c.Decode(context.Background(), BytesInput([]byte("definitely not an image")))
		assert.ErrorIs(t, err, ErrInvalidImage)
	})
}

func TestDecode_NoDecoder(t *testing.T) {
	for _, c := range []*Converter{
		newTestConverter(&fakeCodec{}),
		newTestConverter(&fakeCodec{}, WithDecoder(&fakeDecoder{unavailable: true})),
	} {
		_, err := c.Decode(context.Background(), BytesInput(avifBytes(4, 4)))
		assert.ErrorIs(t, err, codec.ErrUnavailable)
	}
}

func TestDecode_DecoderError(t *testing.T) {
	c := newTestConverter(&fakeCodec{}, WithDecoder(&fakeDecoder{err: codec.ErrDecodeFailed}))
	_, err := c.Decode(context.Background(), BytesInput(avifBytes(4, 4)))
	assert.ErrorIs(t, err, codec.ErrDecodeFailed)
}

// namedCodec is a fakeCodec under another name.
type namedCodec struct {
	*fakeCodec
	name string
}

func (n namedCodec) Name() string { return n.name }

func TestConvert_ForcedCodec(t *testing.T) {
	first, second := &fakeCodec{}, &fakeCodec{}
	reg := codec.NewRegistry(namedCodec{first, "first"}, namedCodec{second, "second"})

	res, err := New(reg, WithCodec("second")).Convert(context.Background(), BytesInput(pngBytes(t, 8, 8, 0xff)), avif.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "second", res.Codec)
	assert.Zero(t, first.callCount())
	assert.Equal(t, 1, second.callCount())

	_, err = New(reg, WithCodec("third")).Convert(context.Background(), BytesInput(pngBytes(t, 8, 8, 0xff)), avif.DefaultOptions())
	assert.ErrorIs(t, err, codec.ErrUnavailable)

	cd, err := New(reg).Codec()
	require.NoError(t, err)
	assert.Equal(t, "first", cd.Name())
}

// tiffOrientation is a little-endian TIFF header whose IFD0 holds only an
// orientation entry.
func tiffOrientation(o uint16) []byte {
	b := []byte("II*\x00")
	b = binary.LittleEndian.AppendUint32(b, 8)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 0x0112)
	b = binary.LittleEndian.AppendUint16(b, 3)
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint16(b, o)
	b = append(b, 0, 0)
	return binary.LittleEndian.AppendUint32(b, 0)
}

// withAPP1 inserts APP1 segments with the given payloads after SOI.
func withAPP1(jpg []byte, payloads ...[]byte) []byte {
	out := append([]byte{}, jpg[:2]...)
	for _, p := range payloads {
		out = append(out, 0xFF, 0xE1, byte((len(p)+2)>>8), byte(len(p)+2))
		out = append(out, p...)
	}
	return append(out, jpg[2:]...)
}

func TestConvert_PreserveMetadata(t *testing.T) {
	xmp := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"/>`)
	src := withAPP1(jpegBytes(t, 20, 10),
		append([]byte(codec.JPEGExifHeader), tiffOrientation(6)...),
		append([]byte(codec.JPEGXMPHeader), xmp...),
	)

	t.Run("kept and uprighted", func(t *testing.T) {
		fc := &fakeCodec{}
		opts, err := avif.NewOptions(avif.PreserveMetadata(true))
		require.NoError(t, err)

		_, err = newTestConverter(fc).Convert(context.Background(), BytesInput(src), opts)
		require.NoError(t, err)

		require.Len(t, fc.meta, 1)
		assert.Equal(t, tiffOrientation(1), fc.meta[0].Exif)
		assert.Equal(t, xmp, fc.meta[0].XMP)
		assert.Equal(t, image.Pt(10, 20), fc.dims[0], "orientation 6 rotates the pixels")
	})

	t.Run("dropped", func(t *testing.T) {
		fc := &fakeCodec{}
		_, err := newTestConverter(fc).Convert(context.Background(), BytesInput(src), avif.DefaultOptions())
		require.NoError(t, err)
		assert.Nil(t, fc.meta[0].Exif)
		assert.Nil(t, fc.meta[0].XMP)
	})
}

func TestJPEGMetadata(t *testing.T) {
	plain := jpegBytes(t, 8, 8)
	assert.Equal(t, metadata{}, jpegMetadata(plain))

	exif := tiffOrientation(1)
	got := jpegMetadata(withAPP1(plain, []byte("not exif"), append([]byte(codec.JPEGExifHeader), exif...)))
	assert.Equal(t, exif, got.exif)
	assert.Nil(t, got.xmp)

	truncated := withAPP1(plain, append([]byte(codec.JPEGExifHeader), exif...))[:12]
	assert.Equal(t, metadata{}, jpegMetadata(truncated))
}

func TestUprightExif(t *testing.T) {
	rotated := tiffOrientation(8)
	up := uprightExif(rotated)
	assert.Equal(t, tiffOrientation(1), up)
	assert.Equal(t, tiffOrientation(8), rotated, "input is not modified")

	assert.Equal(t, []byte("short"), uprightExif([]byte("short")))
	assert.Equal(t, []byte("XX*\x00\x08\x00\x00\x00"), uprightExif([]byte("XX*\x00\x08\x00\x00\x00")))

	upright := tiffOrientation(1)
	assert.Equal(t, upright, uprightExif(upright))
}
