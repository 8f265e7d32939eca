package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"labcore/internal/blob/core"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	if _, err := s.Put(ctx, "attachments/e1/a1", bytes.NewBufferString("gel image"), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"filename": "gel.png"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "attachments/e1/a1", bytes.NewBufferString("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, rc, err := s.Get(ctx, "attachments/e1/a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "gel image" || info.ContentType != "image/png" || info.Metadata["filename"] != "gel.png" {
		t.Fatalf("unexpected blob %+v %q", info, body)
	}
	info.Metadata["filename"] = "mutated"
	head, _ := s.Head(ctx, "attachments/e1/a1")
	if head.Metadata["filename"] != "gel.png" {
		t.Fatalf("metadata leaked through Info copy")
	}
	list, _ := s.List(ctx, "attachments/e1/")
	if len(list) != 1 {
		t.Fatalf("expected 1 listed blob, got %d", len(list))
	}
	if _, err := s.PresignURL(ctx, "attachments/e1/a1", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if ok, _ := s.Delete(ctx, "attachments/e1/a1"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if _, err := s.Head(ctx, "attachments/e1/a1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := s.Delete(ctx, "attachments/e1/a1"); ok {
		t.Fatalf("expected second delete to report absence")
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	if _, err := New().Put(context.Background(), " ", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
