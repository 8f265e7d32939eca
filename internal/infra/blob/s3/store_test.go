package s3

import (
	"context"
	"errors"
	"io"
	"labcore/internal/blob/core"
	"strings"
	"testing"
)

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	key := "attachments/e1/a1"
	info, err := s.Put(ctx, key, strings.NewReader("gel image"), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"filename": "gel.png"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("gel image")) || info.ContentType != "image/png" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, key, strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "gel image" || got.Metadata["filename"] != "gel.png" {
		t.Fatalf("unexpected get %+v %q", got, body)
	}
	if _, err := s.Put(ctx, "other/x", strings.NewReader("y"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "attachments/")
	if err != nil || len(list) != 1 || list[0].Key != key {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	url, err := s.PresignURL(ctx, key, core.SignedURLOptions{})
	if err != nil || !strings.Contains(url, "mock-bucket/attachments/e1/a1") || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("unexpected presigned url %q %v", url, err)
	}
	if _, err := s.PresignURL(ctx, key, core.SignedURLOptions{Method: "DELETE"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	head, err := s.Head(ctx, key)
	if err != nil || head.ETag == "" || head.ETag != info.ETag || head.Size != info.Size {
		t.Fatalf("unexpected head %+v %v", head, err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete should report absence: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	s, err := New(context.Background(), Config{Bucket: "b", Endpoint: "http://minio:9000", PathStyle: true, AccessKeyID: "id", SecretAccessKey: "secret"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	url, err := s.PresignURL(context.Background(), "k", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "http://minio:9000/b/k") {
		t.Fatalf("unexpected url %q %v", url, err)
	}
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n0;chunk-signature=def\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("unexpected decode %q %v", body, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("plain body should not decode")
	}
}
