package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatrelay/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Message{}, &model.FileRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestMessageRepository_ListOrdersByInsertion(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(setupTestDB(t))

	contents := []struct {
		role    model.Role
		content string
	}{
		{model.RoleUser, "first"},
		{model.RoleAssistant, "second"},
		{model.RoleUser, "third"},
	}
	for _, c := range contents {
		if err := repo.Create(ctx, &model.Message{SessionID: "s1", Role: c.role, Content: c.content}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	if err := repo.Create(ctx, &model.Message{SessionID: "other", Role: model.RoleUser, Content: "noise"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	got, err := repo.ListBySessionID(ctx, "s1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, c := range contents {
		if got[i].Content != c.content || got[i].Role != c.role {
			t.Errorf("message %d: expected %s/%q, got %s/%q", i, c.role, c.content, got[i].Role, got[i].Content)
		}
		if got[i].CreatedAt.IsZero() {
			t.Errorf("message %d: expected server-assigned timestamp", i)
		}
	}
}

func TestMessageRepository_UnknownSessionIsEmpty(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	got, err := repo.ListBySessionID(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestMessageRepository_RejectsUnknownRole(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)

	err := repo.Create(context.Background(), &model.Message{SessionID: "s1", Role: "system", Content: "x"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	var count int64
	db.Model(&model.Message{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no rows written, got %d", count)
	}
}

func TestMessageRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(setupTestDB(t))
	_ = repo.Create(ctx, &model.Message{SessionID: "s1", Role: model.RoleUser, Content: "hi"})
	_ = repo.Create(ctx, &model.Message{SessionID: "s2", Role: model.RoleUser, Content: "keep"})

	for i := 0; i < 2; i++ {
		if _, err := repo.DeleteBySessionID(ctx, "s1"); err != nil {
			t.Fatalf("delete round %d: %v", i, err)
		}
		got, err := repo.ListBySessionID(ctx, "s1")
		if err != nil {
			t.Fatalf("list round %d: %v", i, err)
		}
		if len(got) != 0 {
			t.Errorf("round %d: expected empty history, got %d", i, len(got))
		}
	}

	kept, _ := repo.ListBySessionID(ctx, "s2")
	if len(kept) != 1 {
		t.Errorf("expected other session untouched, got %d", len(kept))
	}
}

func TestFileRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(setupTestDB(t))

	for _, name := range []string{"a.csv", "a_1.csv", "b.pdf"} {
		if err := repo.Create(ctx, &model.FileRecord{SessionID: "s1", Filename: name, Filepath: "/x/" + name, Size: 3}); err != nil {
			t.Fatalf("create record %s: %v", name, err)
		}
	}

	list, err := repo.ListBySessionID(ctx, "s1")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(list) != 3 || list[0].Filename != "b.pdf" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	rec, err := repo.GetBySessionAndName(ctx, "s1", "a_1.csv")
	if err != nil || rec == nil {
		t.Fatalf("expected record, got %v / %v", rec, err)
	}
	missing, err := repo.GetBySessionAndName(ctx, "s1", "nope.csv")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record without error, got %v / %v", missing, err)
	}

	byName, err := repo.ListBySessionAndNames(ctx, "s1", []string{"a.csv", "b.pdf", "ghost.txt"})
	if err != nil {
		t.Fatalf("list by names: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(byName))
	}

	ids := []uint{byName[0].ID, byName[1].ID}
	if err := repo.DeleteByIDs(ctx, ids); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, _ := repo.ListBySessionID(ctx, "s1")
	if len(left) != 1 || left[0].Filename != "a_1.csv" {
		t.Errorf("expected only a_1.csv left, got %+v", left)
	}
}

func TestFileRepository_DuplicateNameRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(setupTestDB(t))

	if err := repo.Create(ctx, &model.FileRecord{SessionID: "s1", Filename: "a.csv", Filepath: "/a", Size: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, &model.FileRecord{SessionID: "s1", Filename: "a.csv", Filepath: "/a", Size: 1}); err == nil {
		t.Fatal("expected unique constraint violation")
	}
	if err := repo.Create(ctx, &model.FileRecord{SessionID: "s2", Filename: "a.csv", Filepath: "/b", Size: 1}); err != nil {
		t.Fatalf("same name in another session should succeed: %v", err)
	}
}
