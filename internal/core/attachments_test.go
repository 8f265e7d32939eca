package core

import (
	"context"
	"errors"
	"io"
	"labcore/internal/blob"
	"labcore/pkg/domain"
	"strings"
	"testing"
)

func TestAttachmentRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		store   blob.Store
		withURL bool
	}{
		{name: "memory", store: blob.NewMemory()},
		{name: "s3", store: blob.NewMockS3ForTests(), withURL: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, WithBlobStore(tc.store))
			ctx := context.Background()
			e := mustEntity(t, svc, domain.NewEntity{Name: "Gel"})

			ref, err := svc.UploadAttachment(ctx, e.ID, "gel.png", "image/png", strings.NewReader("pixels"))
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if ref.Name != "gel.png" || ref.ID == "" {
				t.Fatalf("unexpected reference %+v", ref)
			}
			if got := reload(t, svc, e.ID).Attachments; len(got) != 1 || got[0].ID != ref.ID {
				t.Fatalf("expected attachment recorded, got %v", got)
			}

			resolved, err := svc.ResolveAttachment(ctx, e.ID, ref.ID)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved.Blob.Size != int64(len("pixels")) {
				t.Fatalf("expected size 6, got %d", resolved.Blob.Size)
			}
			if tc.withURL && resolved.URL == "" {
				t.Fatalf("expected presigned url")
			}

			_, rc, err := svc.OpenAttachment(ctx, e.ID, ref.ID)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != "pixels" {
				t.Fatalf("unexpected content %q", body)
			}

			if err := svc.RemoveEntityAttachment(ctx, e.ID, ref.ID); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if _, err := tc.store.Head(ctx, AttachmentKey(e.ID, ref.ID)); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected blob deleted, got %v", err)
			}
			if _, err := svc.ResolveAttachment(ctx, e.ID, ref.ID); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after removal, got %v", err)
			}
		})
	}
}

func TestDeleteEntityRemovesAttachmentBlobs(t *testing.T) {
	store := blob.NewMemory()
	svc := newTestService(t, WithBlobStore(store))
	ctx := context.Background()
	e := mustEntity(t, svc, domain.NewEntity{Name: "Scan"})
	ref, err := svc.UploadAttachment(ctx, e.ID, "scan.tif", "image/tiff", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.DeleteEntity(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Head(ctx, AttachmentKey(e.ID, ref.ID)); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected blob removed with entity, got %v", err)
	}
}

func TestAttachmentErrors(t *testing.T) {
	ctx := context.Background()
	bare := newTestService(t)
	e := mustEntity(t, bare, domain.NewEntity{Name: "Bare"})
	if _, err := bare.UploadAttachment(ctx, e.ID, "x.txt", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("expected ErrNoBlobStore, got %v", err)
	}
	if _, err := bare.ResolveAttachment(ctx, e.ID, "att-1"); !errors.Is(err, ErrNoBlobStore) {
		t.Fatalf("expected ErrNoBlobStore, got %v", err)
	}

	if err := bare.AddEntityAttachment(ctx, e.ID, domain.Reference{ID: "doc-1", Name: "protocol.pdf"}); err != nil {
		t.Fatalf("add attachment reference: %v", err)
	}
	if err := bare.AddEntityAttachment(ctx, e.ID, domain.Reference{ID: "doc-1"}); !errors.Is(err, domain.ErrAlreadyAssociated) {
		t.Fatalf("expected ErrAlreadyAssociated, got %v", err)
	}
	if err := bare.AddEntityAttachment(ctx, e.ID, domain.Reference{}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if err := bare.RemoveEntityAttachment(ctx, e.ID, "doc-2"); !errors.Is(err, domain.ErrNotAssociated) {
		t.Fatalf("expected ErrNotAssociated, got %v", err)
	}
	if err := bare.RemoveEntityAttachment(ctx, e.ID, "doc-1"); err != nil {
		t.Fatalf("remove without blob store: %v", err)
	}

	svc := newTestService(t, WithBlobStore(blob.NewMemory()))
	if _, err := svc.UploadAttachment(ctx, "e-404", "x.txt", "", strings.NewReader("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	other := mustEntity(t, svc, domain.NewEntity{Name: "Other"})
	if _, err := svc.UploadAttachment(ctx, other.ID, "", "", strings.NewReader("x")); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty filename, got %v", err)
	}
	if _, _, err := svc.OpenAttachment(ctx, other.ID, "att-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
