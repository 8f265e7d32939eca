// Package resolvers maps association engine outcomes onto the
// {success, message, data} responses returned to API callers. Expected
// failures become unsuccessful responses; only store faults surface as errors.
package resolvers

import (
	"context"
	"errors"
	"fmt"
	"labcore/internal/adapters/export"
	"labcore/internal/core"
	"labcore/pkg/domain"
)

// Response is the result of a mutation.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Authorizer decides whether actor may perform action on target. A non-nil
// error denies the request.
type Authorizer interface {
	Authorize(ctx context.Context, actor string, action domain.Action, target domain.ActivityTarget) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor string, action domain.Action, target domain.ActivityTarget) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, actor string, action domain.Action, target domain.ActivityTarget) error {
	return f(ctx, actor, action, target)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, string, domain.Action, domain.ActivityTarget) error { return nil }

// ActionRead is passed to the Authorizer for queries.
const ActionRead domain.Action = "read"

// ErrForbidden can be returned by an Authorizer to deny a request.
var ErrForbidden = errors.New("forbidden")

// Option configures Resolvers.
type Option func(*Resolvers)

// WithAuthorizer installs an access check consulted before every call.
func WithAuthorizer(a Authorizer) Option {
	return func(r *Resolvers) {
		if a != nil {
			r.auth = a
		}
	}
}

// WithExporter replaces the exporter used by ExportEntity.
func WithExporter(e *export.Exporter) Option {
	return func(r *Resolvers) {
		if e != nil {
			r.exporter = e
		}
	}
}

// Resolvers exposes the engine to API callers.
type Resolvers struct {
	svc      *core.Service
	auth     Authorizer
	exporter *export.Exporter
}

// New returns resolvers over svc.
func New(svc *core.Service, opts ...Option) *Resolvers {
	r := &Resolvers{svc: svc, auth: allowAll{}, exporter: export.New(svc)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolvers) authorize(ctx context.Context, action domain.Action, kind domain.Kind, id string) error {
	return r.auth.Authorize(ctx, core.ActorFromContext(ctx), action, domain.ActivityTarget{ID: id, Type: kind})
}

func ok(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

func failed(message string) Response {
	return Response{Message: message}
}

// messages names the responses of one mutation.
type messages struct {
	success  string
	failure  string
	exists   string
	missing  string
	notFound string
}

func entityMessages(success, failure string) messages {
	return messages{success: success, failure: failure}
}

// notFoundMessage names the missing document. Missing attributes and
// attachments use the mutation's own wording when it has one.
func notFoundMessage(err error, m messages) string {
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		if m.notFound != "" {
			return m.notFound
		}
		return "Entity not found"
	}
	switch nf.Kind {
	case domain.KindCollection:
		return "Collection not found"
	case domain.KindAttribute:
		if m.missing != "" {
			return m.missing
		}
		return "Attribute not found"
	case domain.KindAttachment:
		if m.missing != "" {
			return m.missing
		}
		return "Attachment not found"
	default:
		return "Entity not found"
	}
}

// respond turns err into a failed response when it belongs to the expected
// taxonomy. Any other error is returned.
func respond(err error, m messages, data any) (Response, error) {
	var partial *core.PartialLinkError
	switch {
	case err == nil:
		return ok(m.success, data), nil
	case errors.As(err, &partial):
		return Response{
			Success: true,
			Message: fmt.Sprintf("%s; %d reference(s) could not be linked", m.success, len(partial.Failures)),
			Data:    data,
		}, nil
	case errors.Is(err, ErrForbidden):
		return failed("Not authorized"), nil
	case errors.Is(err, domain.ErrAlreadyAssociated) && m.exists != "":
		return failed(m.exists), nil
	case errors.Is(err, domain.ErrNotAssociated) && m.missing != "":
		return failed(m.missing), nil
	case errors.Is(err, domain.ErrNotFound):
		return failed(notFoundMessage(err, m)), nil
	case errors.Is(err, domain.ErrAlreadyAssociated),
		errors.Is(err, domain.ErrNotAssociated),
		errors.Is(err, domain.ErrInvalid),
		errors.Is(err, domain.ErrCycle),
		errors.Is(err, domain.ErrWriteConflict):
		return failed(m.failure), nil
	default:
		return Response{}, err
	}
}

// guard runs fn when the caller may perform action on the target. A denial
// is reported as ErrForbidden.
func (r *Resolvers) guard(ctx context.Context, action domain.Action, kind domain.Kind, id string, fn func() error) error {
	if err := r.authorize(ctx, action, kind, id); err != nil {
		if errors.Is(err, ErrForbidden) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return fn()
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
