package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the file is not an image.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadUnavailable indicates no storage backend is configured.
	ErrUploadUnavailable = errors.New("image uploads are not configured")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService attaches cover images to content records.
type UploadService interface {
	UploadContentImage(ctx context.Context, collection, id string, actor models.Actor, file *multipart.FileHeader) (dto.ContentResponse, error)
}

type uploadService struct {
	storage FileStorage
	content ContentService
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadService constructs an upload service. storage may be nil when no
// media backend is configured; uploads then fail with ErrUploadUnavailable.
func NewUploadService(storage FileStorage, content ContentService, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &uploadService{
		storage: storage,
		content: content,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/healthwatch-api/internal/service/upload"),
	}
}

func (s *uploadService) UploadContentImage(ctx context.Context, collection, id string, actor models.Actor, file *multipart.FileHeader) (dto.ContentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.content_image", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.id", id),
		attribute.Int64("upload.max_bytes", s.maxSize),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.MediaUploadLatency().Observe(time.Since(start).Seconds())
	}()

	if s.storage == nil {
		span.SetStatus(codes.Error, "storage unavailable")
		return dto.ContentResponse{}, apperror.Mutation("Image uploads are not available right now.", ErrUploadUnavailable)
	}
	if file == nil {
		return dto.ContentResponse{}, apperror.Validation("file is required", nil)
	}
	current, err := s.content.Detail(ctx, collection, id, actor.ID)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if current.Author.ID != actor.ID {
		return dto.ContentResponse{}, apperror.Forbidden("only the author can change this entry")
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		observability.MediaUploads().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.ContentResponse{}, apperror.Validation("image is too large", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.ContentResponse{}, apperror.Validation("could not read the upload", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.ContentResponse{}, apperror.Validation("could not read the upload", err)
	}
	if int64(buf.Len()) > s.maxSize {
		observability.MediaUploads().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.ContentResponse{}, apperror.Validation("image is too large", ErrUploadTooLarge)
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !strings.HasPrefix(detected.String(), "image/") {
		observability.MediaUploads().WithLabelValues("type").Inc()
		span.SetStatus(codes.Error, "type not allowed")
		return dto.ContentResponse{}, apperror.Validation("only images can be attached", ErrUploadTypeNotAllowed)
	}

	name := sanitizeFileName(file.Filename, detected.Extension())
	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.MediaUploads().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		s.logger.Error().Err(err).Str("content_id", id).Msg("failed to store content image")
		return dto.ContentResponse{}, apperror.Mutation("Could not upload the image. Please try again.", err)
	}

	response, err := s.content.AttachImage(ctx, collection, id, actor, url)
	if err != nil {
		span.RecordError(err)
		return dto.ContentResponse{}, err
	}

	observability.MediaUploads().WithLabelValues("ok").Inc()
	span.SetStatus(codes.Ok, "stored")
	return response, nil
}

func sanitizeFileName(name, detectedExt string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("image-%d", time.Now().Unix())
	}
	ext := detectedExt
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(name))
	}
	return base + ext
}
