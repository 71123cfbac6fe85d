package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatrelay/internal/repository"
	"chatrelay/internal/storage"
)

var allowedExtensions = []string{"pdf", "csv", "xlsx", "xls", "txt"}

type fileFixture struct {
	svc   *FileService
	repo  *repository.FileRepository
	store storage.Store
	root  string
}

func newFileFixture(t *testing.T, maxBytes int64) fileFixture {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return newFileFixtureWithStore(t, store, root, maxBytes)
}

func newFileFixtureWithStore(t *testing.T, store storage.Store, root string, maxBytes int64) fileFixture {
	t.Helper()
	repo := repository.NewFileRepository(setupTestDB(t))
	return fileFixture{
		svc:   NewFileService(repo, store, nil, maxBytes, allowedExtensions),
		repo:  repo,
		store: store,
		root:  root,
	}
}

func upload(name, content string) UploadInput {
	return UploadInput{Filename: name, Content: strings.NewReader(content)}
}

func TestFileService_UploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	saved, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("report.PDF", "%PDF-1.4 body")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(saved) != 1 || saved[0].Name != "report.PDF" || saved[0].Size != int64(len("%PDF-1.4 body")) {
		t.Fatalf("unexpected saved files %+v", saved)
	}

	rc, record, err := fx.svc.Open(ctx, "s1", "report.PDF")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4 body" {
		t.Errorf("round trip mismatch %q", body)
	}
	if record.Filepath != filepath.Join(fx.root, "s1", "report.PDF") {
		t.Errorf("unexpected recorded path %q", record.Filepath)
	}

	list, err := fx.svc.List(ctx, "s1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listed file, got %+v / %v", list, err)
	}
}

func TestFileService_CollisionGetsSuffix(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	for _, content := range []string{"first", "second"} {
		if _, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("a.csv", content)}); err != nil {
			t.Fatalf("upload %s: %v", content, err)
		}
	}

	for name, want := range map[string]string{"a.csv": "first", "a_1.csv": "second"} {
		rc, _, err := fx.svc.Open(ctx, "s1", name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		got, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(got) != want {
			t.Errorf("%s: expected %q, got %q", name, want, got)
		}
	}
}

func TestFileService_OversizeLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 16)

	_, err := fx.svc.Upload(ctx, "s1", []UploadInput{{
		Filename: "big.txt",
		Content:  bytes.NewReader(bytes.Repeat([]byte("x"), 17)),
	}})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if list, _ := fx.svc.List(ctx, "s1"); len(list) != 0 {
		t.Errorf("expected no record, got %+v", list)
	}
	if _, err := os.Stat(filepath.Join(fx.root, "s1", "big.txt")); !os.IsNotExist(err) {
		t.Errorf("expected no stored file, stat err = %v", err)
	}
}

func TestFileService_ValidationStopsBatchButKeepsEarlierFiles(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	saved, err := fx.svc.Upload(ctx, "s1", []UploadInput{
		upload("ok.txt", "fine"),
		upload("evil.exe", "MZ"),
		upload("later.txt", "never"),
	})
	if !errors.Is(err, ErrFileTypeNotAllowed) {
		t.Fatalf("expected ErrFileTypeNotAllowed, got %v", err)
	}
	if len(saved) != 1 || saved[0].Name != "ok.txt" {
		t.Errorf("expected earlier file reported, got %+v", saved)
	}
	list, _ := fx.svc.List(ctx, "s1")
	if len(list) != 1 || list[0].Filename != "ok.txt" {
		t.Errorf("expected only ok.txt recorded, got %+v", list)
	}
}

func TestFileService_SanitizesNames(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	saved, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("../../secret (copy).txt", "x")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if saved[0].Name != "secret copy.txt" {
		t.Errorf("unexpected sanitized name %q", saved[0].Name)
	}
	if _, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("...", "x")}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unusable name, got %v", err)
	}
	if _, err := fx.svc.Upload(ctx, "../s2", []UploadInput{upload("a.txt", "x")}); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestFileService_OpenMissingPhysicalFile(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	if _, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("a.txt", "x")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := os.Remove(filepath.Join(fx.root, "s1", "a.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := fx.svc.Open(ctx, "s1", "a.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	if _, _, err := fx.svc.Open(ctx, "s1", "ghost.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound for unknown name, got %v", err)
	}
}

// failingRemoveStore refuses to delete anything.
type failingRemoveStore struct {
	storage.Store
}

func (failingRemoveStore) Remove(context.Context, string) error {
	return errors.New("permission denied")
}

func TestFileService_DeleteIsBestEffortOnStorage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	local, err := storage.NewLocalStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	fx := newFileFixtureWithStore(t, failingRemoveStore{local}, root, 1024)

	if _, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("a.txt", "x"), upload("b.txt", "y")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	outcome, err := fx.svc.Delete(ctx, "s1", []string{"a.txt", "ghost.txt"}, false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(outcome.Deleted) != 1 || outcome.Deleted[0] != "a.txt" {
		t.Errorf("unexpected deleted list %v", outcome.Deleted)
	}
	if len(outcome.PhysicalDeleteFailures) != 1 || outcome.PhysicalDeleteFailures[0].Name != "a.txt" {
		t.Errorf("expected physical failure reported, got %+v", outcome.PhysicalDeleteFailures)
	}
	list, _ := fx.svc.List(ctx, "s1")
	if len(list) != 1 || list[0].Filename != "b.txt" {
		t.Errorf("expected record removed despite storage failure, got %+v", list)
	}
}

func TestFileService_DeleteAll(t *testing.T) {
	ctx := context.Background()
	fx := newFileFixture(t, 1024)

	if _, err := fx.svc.Upload(ctx, "s1", []UploadInput{upload("a.txt", "x"), upload("b.csv", "y")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := fx.svc.Upload(ctx, "s2", []UploadInput{upload("c.txt", "z")}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	outcome, err := fx.svc.Delete(ctx, "s1", nil, true)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(outcome.Deleted) != 2 || len(outcome.PhysicalDeleteFailures) != 0 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if _, err := os.Stat(filepath.Join(fx.root, "s1", "a.txt")); !os.IsNotExist(err) {
		t.Errorf("expected stored file removed, stat err = %v", err)
	}
	if list, _ := fx.svc.List(ctx, "s2"); len(list) != 1 {
		t.Errorf("expected other session untouched, got %+v", list)
	}

	if _, err := fx.svc.Delete(ctx, "s1", nil, false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput with nothing selected, got %v", err)
	}
}
