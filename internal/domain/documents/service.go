package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/blobstore"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// OwnerCheck reports crud.ErrNotFound when no row with id exists.
type OwnerCheck func(ctx context.Context, id uuid.UUID) error

// Owner adapts a repository into an OwnerCheck.
func Owner[T any](repo crud.Repository[T]) OwnerCheck {
	return func(ctx context.Context, id uuid.UUID) error {
		_, err := repo.GetByID(ctx, id)
		return err
	}
}

type Service struct {
	*crud.Resource[Document]
	blobs  blobstore.Store
	limit  int64
	owners map[string]OwnerCheck
	newKey func() string
	log    zerolog.Logger
}

// NewService stores content in blobs and rejects files above limit bytes.
func NewService(repo Repository, blobs blobstore.Store, limit int64, log zerolog.Logger) *Service {
	if limit <= 0 {
		limit = blobstore.DefaultMaxFileSize
	}
	s := &Service{
		Resource: crud.NewResource[Document](Definition, repo, log),
		blobs:    blobs,
		limit:    limit,
		owners:   make(map[string]OwnerCheck),
		newKey:   uuid.NewString,
		log:      log.With().Str("component", "documents").Logger(),
	}
	return s
}

// RegisterOwner makes a resource a valid document owner.
func (s *Service) RegisterOwner(ownerType string, check OwnerCheck) {
	s.owners[ownerType] = check
}

func (s *Service) checkOwner(ctx context.Context, ownerType string, id uuid.UUID) error {
	check, ok := s.owners[ownerType]
	if !ok {
		return formschema.FieldError("owner_type", "documents cannot be attached to "+ownerType)
	}
	if err := check(ctx, id); err != nil {
		if errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("owner_id", "does not exist")
		}
		return fmt.Errorf("check document owner: %w", err)
	}
	return nil
}

// cleanFilename drops any client-side directories from name.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Create uploads the file of values and stores its metadata. The blob is
// removed again when the metadata cannot be stored.
func (s *Service) Create(ctx context.Context, values formschema.Values) (*Document, error) {
	v := Definition.Validator()
	values = v.Strip(values, false)
	if err := v.Validate(values); err != nil {
		return nil, err
	}
	file, _ := values["file"].(*formschema.File)
	if file == nil || file.Open == nil {
		return nil, formschema.FieldError("file", "is required")
	}
	doc := &Document{}
	if err := formschema.Bind(values, doc); err != nil {
		return nil, fmt.Errorf("bind document: %w", err)
	}
	if err := s.checkOwner(ctx, doc.OwnerType, doc.OwnerID); err != nil {
		return nil, err
	}

	doc.Filename = cleanFilename(file.Filename)
	if doc.Filename == "" {
		return nil, formschema.FieldError("file", blobstore.ErrMissingFileName.Error())
	}
	if err := blobstore.CheckContentType(file.ContentType); err != nil {
		return nil, formschema.FieldError("file", fmt.Sprintf("file type %s is not allowed", file.ContentType))
	}
	if file.Size > s.limit {
		return nil, formschema.FieldError("file", fmt.Sprintf("file exceeds %d bytes", s.limit))
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	key := s.newKey()
	info, err := s.blobs.Put(ctx, key, src, s.limit)
	if errors.Is(err, blobstore.ErrFileTooLarge) {
		return nil, formschema.FieldError("file", fmt.Sprintf("file exceeds %d bytes", s.limit))
	}
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc.ContentType = file.ContentType
	doc.SizeBytes = info.Size
	doc.Checksum = info.Checksum
	doc.StorageKey = key
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		doc.UploadedBy = &uid
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.Error().Err(derr).Str("key", key).Msg("failed to remove orphaned blob")
		}
		return nil, err
	}
	s.log.Info().
		Str("document_id", doc.ID.String()).
		Str("owner_type", doc.OwnerType).
		Str("owner_id", doc.OwnerID.String()).
		Int64("size", doc.SizeBytes).
		Msg("document uploaded")
	return doc, nil
}

// Delete removes the metadata and then the content.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.log.Error().Err(err).Str("key", doc.StorageKey).Msg("failed to remove document content")
	}
	return nil
}

// Open returns the metadata and content of a document. The caller closes
// the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, doc.StorageKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, fmt.Errorf("content of document %s: %w", id, crud.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// ListByOwner lists the documents attached to one row.
func (s *Service) ListByOwner(ctx context.Context, ownerType string, ownerID uuid.UUID, p crud.ListParams) ([]*Document, int, error) {
	p.Where = map[string]any{"owner_type": ownerType, "owner_id": ownerID}
	return s.Repo.List(ctx, p)
}

// OwnerGuard returns a delete guard for ownerType that refuses to delete
// rows that still have documents.
func (s *Service) OwnerGuard(ownerType string) func(ctx context.Context, id uuid.UUID) error {
	return func(ctx context.Context, id uuid.UUID) error {
		n, err := s.Repo.Count(ctx, crud.ListParams{Where: map[string]any{"owner_type": ownerType, "owner_id": id}})
		if err != nil {
			return err
		}
		if n > 0 {
			return crud.Conflictf("record has %d attached documents", n)
		}
		return nil
	}
}
