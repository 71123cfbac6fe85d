package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"chatrelay/internal/model"
	"chatrelay/internal/repository"
	"chatrelay/internal/storage"
)

const maxNameAttempts = 1000

type FileService struct {
	fileRepo     *repository.FileRepository
	store        storage.Store
	logger       *zap.Logger
	maxFileBytes int64
	allowed      map[string]struct{}
}

type UploadInput struct {
	Filename string
	Content  io.Reader
}

type UploadedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type PhysicalDeleteFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// DeleteOutcome lists the records that were removed. Files whose bytes could
// not be removed are still listed in Deleted and repeated in
// PhysicalDeleteFailures.
type DeleteOutcome struct {
	Deleted                []string                `json:"deleted"`
	PhysicalDeleteFailures []PhysicalDeleteFailure `json:"physicalDeleteFailures"`
}

func NewFileService(
	fileRepo *repository.FileRepository,
	store storage.Store,
	logger *zap.Logger,
	maxFileBytes int64,
	allowedExtensions []string,
) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return &FileService{
		fileRepo:     fileRepo,
		store:        store,
		logger:       logger,
		maxFileBytes: maxFileBytes,
		allowed:      allowed,
	}
}

// Upload stores each file under the session, renaming on collision. A
// validation failure stops the batch; files saved before it stay recorded and
// are returned alongside the error.
func (s *FileService) Upload(ctx context.Context, sessionID string, files []UploadInput) ([]UploadedFile, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidInput)
	}

	saved := make([]UploadedFile, 0, len(files))
	for _, file := range files {
		name := storage.SanitizeFilename(file.Filename)
		if name == "" {
			return saved, fmt.Errorf("%w: unusable filename %q", ErrInvalidInput, file.Filename)
		}
		if _, ok := s.allowed[storage.Extension(name)]; !ok {
			return saved, fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, name)
		}

		record, err := s.save(ctx, id, name, file.Content)
		if errors.Is(err, storage.ErrTooLarge) {
			return saved, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, s.maxFileBytes)
		}
		if err != nil {
			s.logger.Error("store upload failed",
				zap.String("session_id", id),
				zap.String("filename", name),
				zap.Error(err),
			)
			continue
		}
		saved = append(saved, UploadedFile{Name: record.Filename, Size: record.Size})
	}
	return saved, nil
}

// save picks the first free candidate name and writes the bytes there.
func (s *FileService) save(ctx context.Context, sessionID, name string, content io.Reader) (*model.FileRecord, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := storage.CandidateName(name, attempt)
		existing, err := s.fileRepo.GetBySessionAndName(ctx, sessionID, candidate)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		key := storage.Key(sessionID, candidate)
		size, err := s.store.Create(ctx, key, content, s.maxFileBytes)
		if errors.Is(err, storage.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		record := &model.FileRecord{
			SessionID: sessionID,
			Filename:  candidate,
			Filepath:  s.store.Location(key),
			Size:      size,
		}
		if err := s.fileRepo.Create(ctx, record); err != nil {
			if rmErr := s.store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
				s.logger.Warn("remove orphaned upload failed", zap.String("key", key), zap.Error(rmErr))
			}
			return nil, err
		}
		s.logger.Info("file uploaded",
			zap.String("session_id", sessionID),
			zap.String("filename", candidate),
			zap.Int64("size", size),
		)
		return record, nil
	}
	return nil, fmt.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}

func (s *FileService) List(ctx context.Context, sessionID string) ([]model.FileRecord, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.fileRepo.ListBySessionID(ctx, id)
}

// Open returns the stored bytes of a recorded file. The caller closes the
// reader.
func (s *FileService) Open(ctx context.Context, sessionID, filename string) (io.ReadCloser, *model.FileRecord, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, nil, err
	}
	name := storage.SanitizeFilename(filename)
	if name == "" {
		return nil, nil, ErrFileNotFound
	}

	record, err := s.fileRepo.GetBySessionAndName(ctx, id, name)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ErrFileNotFound
	}

	rc, size, err := s.store.Open(ctx, storage.Key(id, record.Filename))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil, ErrFileNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	record.Size = size
	return rc, record, nil
}

// Delete removes the named records, or all of the session's records when all
// is set. Unknown names are ignored.
func (s *FileService) Delete(ctx context.Context, sessionID string, filenames []string, all bool) (DeleteOutcome, error) {
	outcome := DeleteOutcome{Deleted: []string{}, PhysicalDeleteFailures: []PhysicalDeleteFailure{}}
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return outcome, err
	}

	var records []model.FileRecord
	switch {
	case all:
		records, err = s.fileRepo.ListBySessionID(ctx, id)
	case len(filenames) > 0:
		names := make([]string, 0, len(filenames))
		for _, f := range filenames {
			if name := storage.SanitizeFilename(f); name != "" {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return outcome, nil
		}
		records, err = s.fileRepo.ListBySessionAndNames(ctx, id, names)
	default:
		return outcome, fmt.Errorf("%w: no filenames given", ErrInvalidInput)
	}
	if err != nil {
		return outcome, err
	}
	if len(records) == 0 {
		return outcome, nil
	}

	ids := make([]uint, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
		err := s.store.Remove(ctx, storage.Key(id, record.Filename))
		if err != nil && !errors.Is(err, storage.ErrNotExist) {
			s.logger.Warn("remove stored file failed",
				zap.String("session_id", id),
				zap.String("filename", record.Filename),
				zap.Error(err),
			)
			outcome.PhysicalDeleteFailures = append(outcome.PhysicalDeleteFailures, PhysicalDeleteFailure{
				Name:  record.Filename,
				Error: err.Error(),
			})
		}
	}
	if err := s.fileRepo.DeleteByIDs(ctx, ids); err != nil {
		return outcome, err
	}
	for _, record := range records {
		outcome.Deleted = append(outcome.Deleted, record.Filename)
	}
	return outcome, nil
}
