package resolvers

import (
	"context"
	"errors"
	"io"
	"labcore/internal/adapters/export"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

// Entities returns at most limit entities; limit <= 0 returns all.
func (r *Resolvers) Entities(ctx context.Context, limit int) ([]domain.Entity, error) {
	var out []domain.Entity
	err := r.guard(ctx, ActionRead, domain.KindEntity, "", func() error {
		var err error
		out, err = r.svc.ListEntities(ctx, domain.Filter{Limit: max(limit, 0)})
		return err
	})
	return out, err
}

// Entity returns the entity with id, or ok=false when it does not exist.
func (r *Resolvers) Entity(ctx context.Context, id string) (domain.Entity, bool, error) {
	var e domain.Entity
	err := r.guard(ctx, ActionRead, domain.KindEntity, id, func() error {
		var err error
		e, err = r.svc.GetEntity(ctx, id)
		return err
	})
	if isNotFound(err) {
		return domain.Entity{}, false, nil
	}
	return e, err == nil, err
}

// ExportEntity renders entity id as JSON or CSV with the selected fields.
func (r *Resolvers) ExportEntity(ctx context.Context, id, format string, fields []string) (Response, error) {
	var art export.Artifact
	err := r.guard(ctx, ActionRead, domain.KindEntity, id, func() error {
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		art, err = r.exporter.Export(ctx, id, f, fields)
		return err
	})
	if err != nil {
		return respond(err, entityMessages("", "Unable to export Entity"), nil)
	}
	return ok("Exported Entity successfully", string(art.Payload)), nil
}

// CreateEntity stores a new entity. The response data is the entity id.
func (r *Resolvers) CreateEntity(ctx context.Context, in domain.NewEntity) (Response, error) {
	var created domain.Entity
	err := r.guard(ctx, domain.ActionCreate, domain.KindEntity, "", func() error {
		var err error
		created, err = r.svc.CreateEntity(ctx, in)
		return err
	})
	return respond(err, entityMessages("Created Entity successfully", "Unable to create Entity"), created.ID)
}

// UpdateEntity moves the stored entity towards desired.
func (r *Resolvers) UpdateEntity(ctx context.Context, desired domain.Entity) (Response, error) {
	var status core.UpdateStatus
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, desired.ID, func() error {
		var err error
		_, status, err = r.svc.UpdateEntity(ctx, desired)
		return err
	})
	if err == nil && status == core.UpdateStatusNoChanges {
		return ok("No changes made to Entity", nil), nil
	}
	return respond(err, entityMessages("Updated Entity", "Unable to update Entity"), nil)
}

// SetEntityDescription replaces the description of entity id.
func (r *Resolvers) SetEntityDescription(ctx context.Context, id, description string) (Response, error) {
	var status core.UpdateStatus
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		var err error
		_, status, err = r.svc.SetEntityDescription(ctx, id, description)
		return err
	})
	if err == nil && status == core.UpdateStatusNoChanges {
		return ok("No changes made to Entity", nil), nil
	}
	return respond(err, entityMessages("Set description successfully", "Unable to set description"), nil)
}

func (r *Resolvers) association(ctx context.Context, add bool, rel domain.Relation, id string, other domain.Reference) (Response, error) {
	noun := "Origin"
	if rel == domain.RelationProducts {
		noun = "Product"
	}
	m := messages{
		success: "Added " + noun + " successfully",
		failure: "Unable to add " + noun,
		exists:  "Entity already associated with " + noun,
	}
	if !add {
		m = messages{
			success: "Removed " + noun + " successfully",
			failure: "Unable to remove " + noun,
			missing: "Entity is not associated with " + noun + " to be removed",
		}
	}
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		if add {
			return r.svc.AddAssociation(ctx, rel, id, other)
		}
		return r.svc.RemoveAssociation(ctx, rel, id, other)
	})
	return respond(err, m, nil)
}

// AddEntityOrigin records origin as an origin of entity id.
func (r *Resolvers) AddEntityOrigin(ctx context.Context, id string, origin domain.Reference) (Response, error) {
	return r.association(ctx, true, domain.RelationOrigins, id, origin)
}

// RemoveEntityOrigin removes origin from entity id.
func (r *Resolvers) RemoveEntityOrigin(ctx context.Context, id string, origin domain.Reference) (Response, error) {
	return r.association(ctx, false, domain.RelationOrigins, id, origin)
}

// AddEntityProduct records product as a product of entity id.
func (r *Resolvers) AddEntityProduct(ctx context.Context, id string, product domain.Reference) (Response, error) {
	return r.association(ctx, true, domain.RelationProducts, id, product)
}

// RemoveEntityProduct removes product from entity id.
func (r *Resolvers) RemoveEntityProduct(ctx context.Context, id string, product domain.Reference) (Response, error) {
	return r.association(ctx, false, domain.RelationProducts, id, product)
}

func (r *Resolvers) associations(ctx context.Context, rel domain.Relation, id string, others []domain.Reference) (Response, error) {
	noun := "Origins"
	if rel == domain.RelationProducts {
		noun = "Products"
	}
	var added int
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		var err error
		added, err = r.svc.AddAssociations(ctx, rel, id, others)
		return err
	})
	return respond(err, entityMessages("Added "+noun+" successfully", "Unable to add "+noun), added)
}

// AddEntityOrigins adds every origin not yet present. Data is the number added.
func (r *Resolvers) AddEntityOrigins(ctx context.Context, id string, origins []domain.Reference) (Response, error) {
	return r.associations(ctx, domain.RelationOrigins, id, origins)
}

// AddEntityProducts adds every product not yet present. Data is the number added.
func (r *Resolvers) AddEntityProducts(ctx context.Context, id string, products []domain.Reference) (Response, error) {
	return r.associations(ctx, domain.RelationProducts, id, products)
}

// AddEntityCollection makes entity id a member of collection.
func (r *Resolvers) AddEntityCollection(ctx context.Context, id, collection string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		return r.svc.AddEntityCollection(ctx, id, collection)
	})
	return respond(err, messages{
		success: "Added Collection successfully",
		failure: "Unable to add Collection",
		exists:  "Entity already associated with Collection",
	}, nil)
}

// RemoveEntityCollection ends the membership of entity id in collection.
func (r *Resolvers) RemoveEntityCollection(ctx context.Context, id, collection string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		return r.svc.RemoveEntityCollection(ctx, id, collection)
	})
	return respond(err, messages{
		success: "Removed Collection successfully",
		failure: "Unable to remove Collection",
		missing: "Entity not associated with Collection",
	}, nil)
}

// AddEntityAttribute appends attribute to entity id. Data is the stored
// attribute id.
func (r *Resolvers) AddEntityAttribute(ctx context.Context, id string, attribute domain.Attribute) (Response, error) {
	var added domain.Attribute
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		var err error
		added, err = r.svc.AddEntityAttribute(ctx, id, attribute)
		return err
	})
	return respond(err, entityMessages("Added Attribute successfully", "Unable to add Attribute"), added.ID)
}

// RemoveEntityAttribute removes attribute attributeID from entity id.
func (r *Resolvers) RemoveEntityAttribute(ctx context.Context, id, attributeID string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		return r.svc.RemoveEntityAttribute(ctx, id, attributeID)
	})
	return respond(err, messages{
		success: "Removed Attribute successfully",
		failure: "Unable to remove Attribute",
		missing: "Entity does not have Attribute to remove",
	}, nil)
}

// UpdateEntityAttribute replaces the attribute of entity id with the same id.
func (r *Resolvers) UpdateEntityAttribute(ctx context.Context, id string, attribute domain.Attribute) (Response, error) {
	var status core.UpdateStatus
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		var err error
		status, err = r.svc.UpdateEntityAttribute(ctx, id, attribute)
		return err
	})
	if err == nil && status == core.UpdateStatusNoChanges {
		return ok("No changes made to Attribute", nil), nil
	}
	return respond(err, messages{
		success: "Updated Attribute successfully",
		failure: "Unable to update Attribute",
		missing: "Entity does not contain Attribute to update",
	}, nil)
}

// AddEntityAttachment records attachment on entity id.
func (r *Resolvers) AddEntityAttachment(ctx context.Context, id string, attachment domain.Reference) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		return r.svc.AddEntityAttachment(ctx, id, attachment)
	})
	return respond(err, messages{
		success: "Added Attachment successfully",
		failure: "Unable to add Attachment",
		exists:  "Entity already has Attachment",
	}, nil)
}

// UploadEntityAttachment stores the content of body and attaches it to entity
// id. Data is the attachment id.
func (r *Resolvers) UploadEntityAttachment(ctx context.Context, id, filename, contentType string, body io.Reader) (Response, error) {
	var ref domain.Reference
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		var err error
		ref, err = r.svc.UploadAttachment(ctx, id, filename, contentType, body)
		return err
	})
	if errors.Is(err, core.ErrNoBlobStore) {
		return failed("Attachments are not configured"), nil
	}
	return respond(err, entityMessages("Added Attachment successfully", "Unable to add Attachment"), ref.ID)
}

// RemoveEntityAttachment removes attachment attachmentID from entity id.
func (r *Resolvers) RemoveEntityAttachment(ctx context.Context, id, attachmentID string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindEntity, id, func() error {
		return r.svc.RemoveEntityAttachment(ctx, id, attachmentID)
	})
	return respond(err, messages{
		success: "Removed Attachment successfully",
		failure: "Unable to remove Attachment",
		missing: "Entity does not have Attachment to remove",
	}, nil)
}

// DeleteEntity removes entity id and its references.
func (r *Resolvers) DeleteEntity(ctx context.Context, id string) (Response, error) {
	err := r.guard(ctx, domain.ActionDelete, domain.KindEntity, id, func() error {
		_, err := r.svc.DeleteEntity(ctx, id)
		return err
	})
	return respond(err, entityMessages("Deleted Entity successfully", "Unable to delete Entity"), nil)
}
