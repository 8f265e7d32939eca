package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"labcore/internal/blob"
	"labcore/pkg/domain"
)

// ErrNoBlobStore is returned by attachment operations that need blob storage
// when the service has none.
var ErrNoBlobStore = errors.New("no blob store configured")

// AttachmentKey is the blob key holding attachment attachmentID of entityID.
func AttachmentKey(entityID, attachmentID string) string {
	return "attachments/" + entityID + "/" + attachmentID
}

// Attachment describes a resolved attachment blob.
type Attachment struct {
	Reference domain.Reference `json:"reference"`
	Blob      blob.Info        `json:"blob"`
	URL       string           `json:"url,omitempty"`
}

// AddEntityAttachment records ref in the attachment list of entityID.
func (s *Service) AddEntityAttachment(ctx context.Context, entityID string, ref domain.Reference) error {
	return s.observe(ctx, "add_entity_attachment", func(ctx context.Context) error {
		return s.addAttachment(ctx, entityID, ref)
	})
}

func (s *Service) addAttachment(ctx context.Context, entityID string, ref domain.Reference) error {
	if ref.ID == "" {
		return fmt.Errorf("%w: attachment id required", domain.ErrInvalid)
	}
	e, err := s.loadEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if containsRef(e.Attachments, ref.ID) {
		return fmt.Errorf("%w: attachment %s already on %s", domain.ErrAlreadyAssociated, ref.ID, entityID)
	}
	next := withRef(e.Attachments, ref)
	res, err := s.patchEntity(ctx, entityID, domain.EntityPatch{Attachments: &next})
	if err != nil {
		return err
	}
	if res.Modified == 0 {
		return domain.ErrWriteConflict
	}
	s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, "Added Attachment "+ref.ID)
	return nil
}

// RemoveEntityAttachment drops attachmentID from entityID and deletes its
// blob when blob storage is configured.
func (s *Service) RemoveEntityAttachment(ctx context.Context, entityID, attachmentID string) error {
	return s.observe(ctx, "remove_entity_attachment", func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if !containsRef(e.Attachments, attachmentID) {
			return fmt.Errorf("%w: attachment %s not on %s", domain.ErrNotAssociated, attachmentID, entityID)
		}
		next := withoutRef(e.Attachments, attachmentID)
		res, err := s.patchEntity(ctx, entityID, domain.EntityPatch{Attachments: &next})
		if err != nil {
			return err
		}
		if res.Modified == 0 {
			return domain.ErrWriteConflict
		}
		s.deleteBlob(ctx, AttachmentKey(entityID, attachmentID))
		s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, "Removed Attachment "+attachmentID)
		return nil
	})
}

// UploadAttachment stores r as a new blob and attaches it to entityID under
// filename. The blob is removed again if the entity cannot be updated.
func (s *Service) UploadAttachment(ctx context.Context, entityID, filename, contentType string, r io.Reader) (domain.Reference, error) {
	var ref domain.Reference
	err := s.observe(ctx, "upload_attachment", func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		if filename == "" {
			return fmt.Errorf("%w: filename required", domain.ErrInvalid)
		}
		if _, err := s.loadEntity(ctx, entityID); err != nil {
			return err
		}
		ref = domain.Reference{ID: s.ids.NewID(domain.KindAttachment), Name: filename}
		key := AttachmentKey(entityID, ref.ID)
		_, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"filename": filename, "entity": entityID},
		})
		if err != nil {
			return fmt.Errorf("store attachment blob: %w", err)
		}
		if err := s.addAttachment(context.WithoutCancel(ctx), entityID, ref); err != nil {
			s.deleteBlob(ctx, key)
			return err
		}
		return nil
	})
	return ref, err
}

// ResolveAttachment returns the blob metadata of an attachment and, when the
// driver supports it, a time limited download URL.
func (s *Service) ResolveAttachment(ctx context.Context, entityID, attachmentID string) (Attachment, error) {
	var out Attachment
	err := s.observe(ctx, "resolve_attachment", func(ctx context.Context) error {
		ref, err := s.attachmentRef(ctx, entityID, attachmentID)
		if err != nil {
			return err
		}
		key := AttachmentKey(entityID, attachmentID)
		info, err := s.blobs.Head(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			return domain.NotFound(domain.KindAttachment, attachmentID)
		}
		if err != nil {
			return err
		}
		url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{})
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return err
		}
		out = Attachment{Reference: ref, Blob: info, URL: url}
		return nil
	})
	return out, err
}

// OpenAttachment streams the content of an attachment. The caller closes the
// reader.
func (s *Service) OpenAttachment(ctx context.Context, entityID, attachmentID string) (blob.Info, io.ReadCloser, error) {
	if _, err := s.attachmentRef(ctx, entityID, attachmentID); err != nil {
		return blob.Info{}, nil, err
	}
	info, rc, err := s.blobs.Get(ctx, AttachmentKey(entityID, attachmentID))
	if errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, nil, domain.NotFound(domain.KindAttachment, attachmentID)
	}
	return info, rc, err
}

func (s *Service) attachmentRef(ctx context.Context, entityID, attachmentID string) (domain.Reference, error) {
	if s.blobs == nil {
		return domain.Reference{}, ErrNoBlobStore
	}
	e, err := s.loadEntity(ctx, entityID)
	if err != nil {
		return domain.Reference{}, err
	}
	for _, ref := range e.Attachments {
		if ref.ID == attachmentID {
			return ref, nil
		}
	}
	return domain.Reference{}, domain.NotFound(domain.KindAttachment, attachmentID)
}

func (s *Service) deleteAttachmentBlobs(ctx context.Context, e domain.Entity) {
	for _, ref := range e.Attachments {
		s.deleteBlob(ctx, AttachmentKey(e.ID, ref.ID))
	}
}

// deleteBlob removes a blob if blob storage is configured. Failures leave an
// orphaned blob and are only logged.
func (s *Service) deleteBlob(ctx context.Context, key string) {
	if s.blobs == nil {
		return
	}
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("delete attachment blob failed", "key", key, "error", err)
	}
}
