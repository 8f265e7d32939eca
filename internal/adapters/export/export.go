// Package export renders entities as JSON or CSV documents and optionally
// publishes them to blob storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"labcore/internal/blob"
	"labcore/pkg/domain"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Format selects the rendering.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: export format %q", domain.ErrInvalid, s)
}

// Exportable entity fields.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldOwner       = "owner"
	FieldCreated     = "created"
	FieldDescription = "description"
	FieldCollections = "collections"
	FieldOrigins     = "origins"
	FieldProducts    = "products"
	FieldAttributes  = "attributes"
	FieldAttachments = "attachments"
)

// DefaultFields are exported when the caller names none.
var DefaultFields = []string{
	FieldID, FieldName, FieldOwner, FieldCreated, FieldDescription,
	FieldCollections, FieldOrigins, FieldProducts, FieldAttributes,
}

var knownFields = append(slices.Clone(DefaultFields), FieldAttachments)

// Artifact is a rendered export.
type Artifact struct {
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	Fields      []string  `json:"fields"`
	CreatedAt   time.Time `json:"created_at"`
	Key         string    `json:"key,omitempty"`
	URL         string    `json:"url,omitempty"`
	Payload     []byte    `json:"-"`
}

// EntitySource loads the entity to export.
type EntitySource interface {
	GetEntity(ctx context.Context, id string) (domain.Entity, error)
}

// Exporter renders entities loaded from a source.
type Exporter struct {
	source EntitySource
	blobs  blob.Store
	now    func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithBlobStore enables Publish.
func WithBlobStore(store blob.Store) Option {
	return func(e *Exporter) { e.blobs = store }
}

// WithClock overrides the artifact timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an Exporter reading from source.
func New(source EntitySource, opts ...Option) *Exporter {
	e := &Exporter{source: source, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrNoBlobStore is returned by Publish without blob storage.
var ErrNoBlobStore = errors.New("export: no blob store configured")

// Export renders entity id with the selected fields, DefaultFields when none.
func (e *Exporter) Export(ctx context.Context, id string, format Format, fields []string) (Artifact, error) {
	entity, err := e.source.GetEntity(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	return Render(entity, format, fields, e.now())
}

// Publish renders the export and stores it under exports/<entity id>/. The
// artifact carries the blob key and, when the driver can sign URLs, a
// download URL.
func (e *Exporter) Publish(ctx context.Context, id string, format Format, fields []string) (Artifact, error) {
	if e.blobs == nil {
		return Artifact{}, ErrNoBlobStore
	}
	art, err := e.Export(ctx, id, format, fields)
	if err != nil {
		return Artifact{}, err
	}
	art.Key = fmt.Sprintf("exports/%s/%d-%s", id, art.CreatedAt.UnixNano(), art.Filename)
	if _, err := e.blobs.Put(ctx, art.Key, bytes.NewReader(art.Payload), blob.PutOptions{
		ContentType: art.ContentType,
		Metadata:    map[string]string{"entity": id, "format": string(format)},
	}); err != nil {
		return Artifact{}, fmt.Errorf("store export: %w", err)
	}
	url, err := e.blobs.PresignURL(ctx, art.Key, blob.SignedURLOptions{})
	if err != nil && !errors.Is(err, blob.ErrUnsupported) {
		return Artifact{}, fmt.Errorf("sign export url: %w", err)
	}
	art.URL = url
	return art, nil
}

// Render produces the export of entity without loading anything.
func Render(entity domain.Entity, format Format, fields []string, at time.Time) (Artifact, error) {
	fields, err := normalizeFields(fields)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{Format: format, Fields: fields, CreatedAt: at}
	switch format {
	case FormatJSON:
		art.Payload, err = renderJSON(entity, fields)
		art.ContentType = "application/json"
	case FormatCSV:
		art.Payload, err = renderCSV(entity, fields)
		art.ContentType = "text/csv"
	default:
		return Artifact{}, fmt.Errorf("%w: export format %q", domain.ErrInvalid, format)
	}
	if err != nil {
		return Artifact{}, err
	}
	art.Filename = filename(entity) + "." + string(format)
	art.SizeBytes = int64(len(art.Payload))
	return art, nil
}

func normalizeFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return slices.Clone(DefaultFields), nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if !slices.Contains(knownFields, f) {
			return nil, fmt.Errorf("%w: unknown export field %q", domain.ErrInvalid, f)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func filename(e domain.Entity) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, e.Name)
	if name == "" {
		return e.ID
	}
	return name
}

func renderJSON(e domain.Entity, fields []string) ([]byte, error) {
	doc := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case FieldID:
			doc[f] = e.ID
		case FieldName:
			doc[f] = e.Name
		case FieldOwner:
			doc[f] = e.Owner
		case FieldCreated:
			doc[f] = e.Created.UTC()
		case FieldDescription:
			doc[f] = e.Description
		case FieldCollections:
			doc[f] = nonNil(e.Collections)
		case FieldOrigins:
			doc[f] = nonNil(e.Associations.Origins)
		case FieldProducts:
			doc[f] = nonNil(e.Associations.Products)
		case FieldAttributes:
			doc[f] = nonNil(e.Attributes)
		case FieldAttachments:
			doc[f] = nonNil(e.Attachments)
		}
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return payload, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// renderCSV writes a header row and one data row. Reference lists are joined
// with ";". The attributes field expands into one column per value, headed
// "<attribute>.<value>".
func renderCSV(e domain.Entity, fields []string) ([]byte, error) {
	var headers, record []string
	for _, f := range fields {
		switch f {
		case FieldAttributes:
			for _, a := range e.Attributes {
				for _, v := range a.Values {
					headers = append(headers, a.Name+"."+v.Name)
					record = append(record, FormatValue(v))
				}
			}
			continue
		case FieldID:
			record = append(record, e.ID)
		case FieldName:
			record = append(record, e.Name)
		case FieldOwner:
			record = append(record, e.Owner)
		case FieldCreated:
			record = append(record, e.Created.UTC().Format(time.RFC3339))
		case FieldDescription:
			record = append(record, e.Description)
		case FieldCollections:
			record = append(record, strings.Join(e.Collections, ";"))
		case FieldOrigins:
			record = append(record, joinRefs(e.Associations.Origins))
		case FieldProducts:
			record = append(record, joinRefs(e.Associations.Products))
		case FieldAttachments:
			record = append(record, joinRefs(e.Attachments))
		}
		headers = append(headers, f)
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	if err := writer.Write(record); err != nil {
		return nil, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinRefs(refs []domain.Reference) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.ID)
	}
	return strings.Join(parts, ";")
}

// FormatValue renders the data of v as a single cell.
func FormatValue(v domain.Value) string {
	switch d := v.Data.(type) {
	case domain.NumberData:
		return strconv.FormatFloat(float64(d), 'f', -1, 64)
	case domain.TextData:
		return string(d)
	case domain.URLData:
		return string(d)
	case domain.DateData:
		return time.Time(d).UTC().Format(time.RFC3339)
	case domain.EntityData:
		if d.Name != "" {
			return d.Name
		}
		return d.ID
	case domain.SelectData:
		return d.Selected
	default:
		return ""
	}
}
