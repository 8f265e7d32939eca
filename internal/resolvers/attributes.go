package resolvers

import (
	"context"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

func attributeMessages(success, failure string) messages {
	return messages{success: success, failure: failure, notFound: "Attribute not found"}
}

// Attributes returns at most limit attribute templates.
func (r *Resolvers) Attributes(ctx context.Context, limit int) ([]domain.Attribute, error) {
	var out []domain.Attribute
	err := r.guard(ctx, ActionRead, domain.KindAttribute, "", func() error {
		var err error
		out, err = r.svc.ListAttributes(ctx, domain.Filter{Limit: max(limit, 0)})
		return err
	})
	return out, err
}

// Attribute returns the template with id, or ok=false when it does not exist.
func (r *Resolvers) Attribute(ctx context.Context, id string) (domain.Attribute, bool, error) {
	var a domain.Attribute
	err := r.guard(ctx, ActionRead, domain.KindAttribute, id, func() error {
		var err error
		a, err = r.svc.GetAttribute(ctx, id)
		return err
	})
	if isNotFound(err) {
		return domain.Attribute{}, false, nil
	}
	return a, err == nil, err
}

// CreateAttribute stores a template. The response data is its id.
func (r *Resolvers) CreateAttribute(ctx context.Context, attr domain.Attribute) (Response, error) {
	var created domain.Attribute
	err := r.guard(ctx, domain.ActionCreate, domain.KindAttribute, "", func() error {
		var err error
		created, err = r.svc.CreateAttribute(ctx, attr)
		return err
	})
	return respond(err, attributeMessages("Created Attribute successfully", "Unable to create Attribute"), created.ID)
}

// UpdateAttribute replaces the name, description and values of a template.
func (r *Resolvers) UpdateAttribute(ctx context.Context, attr domain.Attribute) (Response, error) {
	var status core.UpdateStatus
	err := r.guard(ctx, domain.ActionUpdate, domain.KindAttribute, attr.ID, func() error {
		var err error
		_, status, err = r.svc.UpdateAttribute(ctx, attr)
		return err
	})
	if err == nil && status == core.UpdateStatusNoChanges {
		return ok("No changes made to Attribute", nil), nil
	}
	return respond(err, attributeMessages("Updated Attribute successfully", "Unable to update Attribute"), nil)
}

// ArchiveAttribute sets or clears the archived flag of a template.
func (r *Resolvers) ArchiveAttribute(ctx context.Context, id string, archived bool) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindAttribute, id, func() error {
		return r.svc.ArchiveAttribute(ctx, id, archived)
	})
	if archived {
		return respond(err, attributeMessages("Archived Attribute successfully", "Unable to archive Attribute"), nil)
	}
	return respond(err, attributeMessages("Restored Attribute successfully", "Unable to restore Attribute"), nil)
}
