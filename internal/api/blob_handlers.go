package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/toollender/toollender/internal/blob"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/http/response"
)

func (s *Server) registerBlobRoutes() {
	if s.services.Blobs == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID:   "uploadImage",
		Method:        http.MethodPost,
		Path:          "/api/v1/blobs",
		Summary:       "Upload image",
		Description:   "Stores a JPEG, PNG, WebP or GIF image and returns its public URL and BlurHash",
		Tags:          []string{"Images"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  int64(s.services.Blobs.MaxBytes()),
	}, s.handleUploadImage)

	// Image bytes are streamed by chi directly, not through the envelope.
	s.router.Get("/api/v1/blobs/{id}", s.handleServeImage)
}

// UploadImageInput carries the raw image.
type UploadImageInput struct {
	ContentType string `header:"Content-Type" doc:"Image media type"`
	RawBody     []byte
}

// BlobOutput wraps the stored blob for Huma.
type BlobOutput struct {
	Body blob.Blob
}

func (s *Server) handleUploadImage(ctx context.Context, input *UploadImageInput) (*BlobOutput, error) {
	if _, err := GetSubject(ctx); err != nil {
		return nil, err
	}

	stored, err := s.services.Blobs.Put(ctx, input.RawBody, input.ContentType)
	switch {
	case errors.Is(err, blob.ErrEmpty), errors.Is(err, blob.ErrUnsupportedType), errors.Is(err, blob.ErrTooLarge):
		return nil, domainerrors.Validation(err.Error())
	case err != nil:
		return nil, err
	}
	return &BlobOutput{Body: stored}, nil
}

func (s *Server) handleServeImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.services.Blobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			response.NotFound(w, "image not found", s.logger)
			return
		}
		s.logger.Error("failed to read image", "error", err)
		response.InternalError(w, "failed to read image", s.logger)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// IDs are content-independent UUIDs that are never reused.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
