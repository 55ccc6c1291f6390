package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/orchestrator"
	"github.com/arloliu/lvbits/session"
)

// Multipart field names, matching the original web form.
const (
	FieldImage    = "image"
	FieldBitsFile = "bits_file"
	FieldQuality  = "quality"
	FieldLambda   = "lmb" // legacy alias of quality
	FieldPreview  = "preview"
)

// multipartMemory is the part of a multipart body kept in memory; the rest spills to disk.
const multipartMemory = 4 << 20

const pngDataURIPrefix = "data:image/png;base64,"

// Service runs compress and decompress requests.
type Service interface {
	CompressRequest(ctx context.Context, imageBytes []byte, quality *float32) (*orchestrator.CompressionResult, error)
	DecompressRequest(ctx context.Context, containerBytes []byte) (*orchestrator.DecompressionResult, error)
}

// HealthSource reports codec session health.
type HealthSource interface {
	Stats() session.Stats
}

// Handlers contains the HTTP handler methods for the API.
type Handlers struct {
	svc     Service
	health  HealthSource
	store   *ArtifactStore
	maxBody int64
	version string
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Service, health HealthSource, store *ArtifactStore, maxBody int64, version string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handlers{
		svc:     svc,
		health:  health,
		store:   store,
		maxBody: maxBody,
		version: version,
		logger:  logger,
	}
}

// upload is a request body plus its form values.
type upload struct {
	data  []byte
	form  url.Values
	query url.Values
}

func (u *upload) value(key string) string {
	if v := u.form.Get(key); v != "" {
		return v
	}

	return u.query.Get(key)
}

// readUpload reads the file part named field of a multipart body, or the whole raw body.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	up := &upload{query: r.URL.Query()}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, h.bodyError(err)
		}
		up.data = data

		return up, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, h.bodyError(err)
	}
	up.form = url.Values(r.MultipartForm.Value)

	file, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: no %s file provided", errs.ErrInvalidRequest, field)
	}
	defer file.Close()

	if hdr.Filename == "" {
		return nil, fmt.Errorf("%w: no file selected", errs.ErrInvalidRequest)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, h.bodyError(err)
	}
	up.data = data

	return up, nil
}

func (h *Handlers) bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) ||
		errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, h.maxBody)
	}

	return fmt.Errorf("%w: read body: %v", errs.ErrInvalidRequest, err)
}

// parseQuality parses the quality field, falling back to the legacy lmb field.
func parseQuality(u *upload) (*float32, error) {
	raw := u.value(FieldQuality)
	if raw == "" {
		raw = u.value(FieldLambda)
	}
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", errs.ErrInvalidQuality, raw)
	}
	q := float32(v)

	return &q, nil
}

func parsePreview(u *upload) bool {
	v, err := strconv.ParseBool(u.value(FieldPreview))
	return err == nil && v
}

func downloadURL(name string) string {
	return "/download/" + name
}

// HandleCompress handles POST /compress.
func (h *Handlers) HandleCompress(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r, FieldImage)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	quality, err := parseQuality(up)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.CompressRequest(r.Context(), up.data, quality)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	name := h.store.Put(res.Container, ExtContainer)
	resp := CompressResponse{
		Success:          true,
		ID:               strings.TrimSuffix(name, ExtContainer),
		Container:        res.Container,
		OriginalSize:     res.OriginalSize,
		CompressedSize:   res.CompressedSize,
		CompressionRatio: res.CompressionRatio,
		BitsPerPixel:     res.BitsPerPixel,
		Width:            res.Width,
		Height:           res.Height,
		Quality:          res.Quality,
		InputFormat:      res.Input.Format,
		Normalized:       res.Input.Normalized,
		DownloadURL:      downloadURL(name),
	}

	if parsePreview(up) {
		dec, err := h.svc.DecompressRequest(r.Context(), res.Container)
		if err != nil {
			WriteError(w, r, h.logger, err)
			return
		}
		h.store.Put(dec.PNG, ExtImage)
		resp.ReconstructedImage = pngDataURIPrefix + base64.StdEncoding.EncodeToString(dec.PNG)
		resp.Warnings = dec.Warnings
	}

	writeResponse(w, r, http.StatusOK, resp)
}

// HandleDecompress handles POST /decompress.
func (h *Handlers) HandleDecompress(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r, FieldBitsFile)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.DecompressRequest(r.Context(), up.data)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	name := h.store.Put(res.PNG, ExtImage)
	writeResponse(w, r, http.StatusOK, DecompressResponse{
		Success:        true,
		ID:             strings.TrimSuffix(name, ExtImage),
		Image:          res.PNG,
		CompressedSize: res.CompressedSize,
		Width:          res.Width,
		Height:         res.Height,
		Quality:        res.Header.Quality,
		Warnings:       res.Warnings,
		DownloadURL:    downloadURL(name),
	})
}

// HandleDownload handles GET /download/{name}.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(r.PathValue("name"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

// HandleHealth handles GET /healthz.
//
// Returns 503 while the codec session is in the init_failed state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.health.Stats()

	status, code := "ok", http.StatusOK
	if stats.State == session.StateInitFailed.String() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	writeResponse(w, r, code, HealthResponse{
		Status:    status,
		Version:   h.version,
		Codec:     stats,
		Artifacts: h.store.Len(),
	})
}
