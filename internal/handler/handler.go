package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/internal/converter"
	"github.com/harliandi/go-avif/internal/middleware"
	"github.com/harliandi/go-avif/pkg/avif"
)

const maxMemory = 32 << 20 // in-memory part of multipart parsing

// Converter is what the handler needs from the conversion backend.
// *converter.WorkerPool and *converter.Converter both satisfy it.
type Converter interface {
	Convert(ctx context.Context, in converter.Input, opts avif.EncodingOptions) (*converter.Result, error)
	Info(in converter.Input) (converter.ImageInfo, error)
	Decode(ctx context.Context, in converter.Input) (image.Image, error)
	Codec() (codec.Codec, error)
}

// Handler handles HTTP requests for image conversion
type Handler struct {
	conv        Converter
	defaults    avif.EncodingOptions
	maxUploadMB int
}

// New creates a new Handler. defaults are the options used for parameters
// a request does not set.
func New(conv Converter, defaults avif.EncodingOptions, maxUploadMB int) *Handler {
	return &Handler{
		conv:        conv,
		defaults:    defaults,
		maxUploadMB: maxUploadMB,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Convert handles POST /convert. The upload is read from the "file" form
// field; query parameters override the default encoding options.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts, err := ParseOptions(r.URL.Query(), h.defaults)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.conv.Convert(r.Context(), converter.BytesInput(data), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	etag := res.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Conversion-Id", res.ID.String())
	w.Header().Set("X-Attempts", strconv.Itoa(res.Attempts))
	w.Header().Set("X-Quality", strconv.Itoa(res.Options.Quality))
	w.Header().Set("X-Target-Met", strconv.FormatBool(res.TargetMet))
	w.Header().Set("X-Codec", res.Codec)
	w.Header().Set("X-Mode", res.Mode)
	if res.Cached {
		w.Header().Set("X-Cache", "hit")
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", res.Format.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(res.Size()))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// Info handles POST /info: dimensions, format and alpha of the upload.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	info, err := h.conv.Info(converter.BytesInput(data))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Decode handles POST /decode: the upload, typically AVIF, re-encoded as
// PNG.
func (h *Handler) Decode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	img, err := h.conv.Decode(r.Context(), converter.BytesInput(data))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", avif.FormatPNG.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Health handles the /health endpoint for readiness and liveness checks
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cd, err := h.conv.Codec()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "codec": cd.Name()})
}

// readUpload extracts the "file" part, writing the error response itself
// when it fails.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := int64(h.maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxMemory)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrNotMultipart):
			http.Error(w, "Content-Type must be multipart/form-data", http.StatusBadRequest)
		default:
			http.Error(w, "Malformed multipart body", http.StatusBadRequest)
		}
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	if header.Size > limit {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}

	var buf bytes.Buffer
	buf.Grow(int(header.Size))
	if _, err := io.Copy(&buf, file); err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return nil, false
	}
	return buf.Bytes(), true
}

// writeError maps conversion errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *avif.ParamError
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	switch {
	case errors.As(err, &pe):
		status = http.StatusBadRequest
		resp.Field = pe.Field
	case errors.Is(err, converter.ErrFileTooLarge), errors.Is(err, converter.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, converter.ErrInvalidImage), errors.Is(err, converter.ErrInvalidImageDimensions),
		errors.Is(err, codec.ErrDecodeFailed):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, converter.ErrPoolBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, codec.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		slog.Info("client went away", "request_id", middleware.RequestIDFrom(r.Context()))
		return
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		resp.Error = "Conversion failed"
	}

	slog.Warn("request failed",
		"request_id", middleware.RequestIDFrom(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
