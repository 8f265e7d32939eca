package resolvers

import (
	"context"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

func collectionMessages(success, failure string) messages {
	return messages{success: success, failure: failure, notFound: "Collection not found"}
}

// Collections returns at most limit collections; limit <= 0 returns all.
func (r *Resolvers) Collections(ctx context.Context, limit int) ([]domain.Collection, error) {
	var out []domain.Collection
	err := r.guard(ctx, ActionRead, domain.KindCollection, "", func() error {
		var err error
		out, err = r.svc.ListCollections(ctx, domain.Filter{Limit: max(limit, 0)})
		return err
	})
	return out, err
}

// Collection returns the collection with id, or ok=false when it does not
// exist.
func (r *Resolvers) Collection(ctx context.Context, id string) (domain.Collection, bool, error) {
	var c domain.Collection
	err := r.guard(ctx, ActionRead, domain.KindCollection, id, func() error {
		var err error
		c, err = r.svc.GetCollection(ctx, id)
		return err
	})
	if isNotFound(err) {
		return domain.Collection{}, false, nil
	}
	return c, err == nil, err
}

// CreateCollection stores a new collection. The response data is its id.
func (r *Resolvers) CreateCollection(ctx context.Context, in domain.NewCollection) (Response, error) {
	var created domain.Collection
	err := r.guard(ctx, domain.ActionCreate, domain.KindCollection, "", func() error {
		var err error
		created, err = r.svc.CreateCollection(ctx, in)
		return err
	})
	return respond(err, collectionMessages("Created Collection successfully", "Unable to create Collection"), created.ID)
}

// UpdateCollection moves the stored collection towards desired.
func (r *Resolvers) UpdateCollection(ctx context.Context, desired domain.Collection) (Response, error) {
	var status core.UpdateStatus
	err := r.guard(ctx, domain.ActionUpdate, domain.KindCollection, desired.ID, func() error {
		var err error
		_, status, err = r.svc.UpdateCollection(ctx, desired)
		return err
	})
	if err == nil && status == core.UpdateStatusNoChanges {
		return ok("No changes made to Collection", nil), nil
	}
	return respond(err, collectionMessages("Updated Collection", "Unable to update Collection"), nil)
}

// DeleteCollection removes collection id from its members and parents and
// deletes it.
func (r *Resolvers) DeleteCollection(ctx context.Context, id string) (Response, error) {
	err := r.guard(ctx, domain.ActionDelete, domain.KindCollection, id, func() error {
		_, err := r.svc.DeleteCollection(ctx, id)
		return err
	})
	return respond(err, collectionMessages("Deleted Collection successfully", "Unable to delete Collection"), nil)
}

// AddCollectionChild nests child under parent.
func (r *Resolvers) AddCollectionChild(ctx context.Context, parent, child string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindCollection, parent, func() error {
		return r.svc.AddCollectionChild(ctx, parent, child)
	})
	m := collectionMessages("Added Collection successfully", "Unable to add Collection")
	m.exists = "Collection already contains Collection"
	return respond(err, m, nil)
}

// RemoveCollectionChild removes child from parent.
func (r *Resolvers) RemoveCollectionChild(ctx context.Context, parent, child string) (Response, error) {
	err := r.guard(ctx, domain.ActionUpdate, domain.KindCollection, parent, func() error {
		return r.svc.RemoveCollectionChild(ctx, parent, child)
	})
	m := collectionMessages("Removed Collection successfully", "Unable to remove Collection")
	m.missing = "Collection does not contain Collection to remove"
	return respond(err, m, nil)
}
