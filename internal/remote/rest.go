package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
)

// REST implements Store against a PostgREST-style row API: one route per
// table, filter operators in the query string, JSON rows in and out.
type REST struct {
	http    *http.Client
	baseURL string

	// now is swappable in tests so FetchedAt stamps are deterministic.
	now func() time.Time
}

// NewREST constructs a REST port. httpClient must already carry any
// authentication transport the backend requires.
func NewREST(httpClient *http.Client, baseURL string) *REST {
	return &REST{http: httpClient, baseURL: baseURL, now: time.Now}
}

// pgError is the PostgREST error envelope. Code carries either a SQLSTATE
// ("42P01", "23505") or a PostgREST condition ("PGRST116").
type pgError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Fetch returns all rows of entityType matching filter.
func (r *REST) Fetch(ctx context.Context, entityType string, filter entity.Filter) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	op := "fetch " + entityType
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.tableURL(entityType, filter), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, r.classify(op, entityType, resp)
	}
	return r.decodeRows(entityType, resp.Body)
}

// FetchOne returns the row with the given id, or ErrNotFound.
func (r *REST) FetchOne(ctx context.Context, entityType, id string) (entity.Record, error) {
	recs, err := r.Fetch(ctx, entityType, entity.Eq("id", id))
	if err != nil {
		return entity.Record{}, err
	}
	if len(recs) == 0 {
		return entity.Record{}, fmt.Errorf("fetch %s %s: %w", entityType, id, ErrNotFound)
	}
	return recs[0], nil
}

// Insert creates a row from attrs and returns the stored representation.
func (r *REST) Insert(ctx context.Context, entityType string, attrs map[string]any) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return entity.Record{}, err
	}
	op := "insert " + entityType
	body, err := json.Marshal(attrs)
	if err != nil {
		return entity.Record{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tableURL(entityType, entity.Filter{}), bytes.NewReader(body))
	if err != nil {
		return entity.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := r.http.Do(req)
	if err != nil {
		return entity.Record{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return entity.Record{}, r.classify(op, entityType, resp)
	}
	return r.decodeRow(entityType, op, resp.Body)
}

// Update patches the row with the given id and returns the stored
// representation, or ErrNotFound when no row matched.
func (r *REST) Update(ctx context.Context, entityType, id string, patch map[string]any) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return entity.Record{}, err
	}
	op := "update " + entityType
	body, err := json.Marshal(patch)
	if err != nil {
		return entity.Record{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, r.tableURL(entityType, entity.Eq("id", id)), bytes.NewReader(body))
	if err != nil {
		return entity.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := r.http.Do(req)
	if err != nil {
		return entity.Record{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.Record{}, r.classify(op, entityType, resp)
	}
	recs, err := r.decodeRows(entityType, resp.Body)
	if err != nil {
		return entity.Record{}, err
	}
	if len(recs) == 0 {
		return entity.Record{}, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return recs[0], nil
}

func (r *REST) tableURL(entityType string, filter entity.Filter) string {
	q := url.Values{}
	// Add, not Set: a filter may carry several conditions on one column
	// (e.g. a range), and PostgREST accepts the repeated parameter.
	for _, c := range filter.Conds {
		q.Add(c.Field, c.Op+"."+c.Value)
	}
	if filter.OrderBy != "" {
		dir := "asc"
		if filter.Desc {
			dir = "desc"
		}
		q.Set("order", filter.OrderBy+"."+dir)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	u := fmt.Sprintf("%s/rest/v1/%s", r.baseURL, entityType)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// classify maps a non-2xx response onto the package error taxonomy.
func (r *REST) classify(op, entityType string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pe pgError
	_ = json.Unmarshal(raw, &pe)

	switch pe.Code {
	case "42P01":
		return &TableMissingError{EntityType: entityType}
	case "23505":
		return &ConflictError{Op: op, Constraint: pe.Details}
	case "PGRST116":
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthorizationError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Op: op, Constraint: pe.Details}
	case resp.StatusCode >= 500:
		return &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, pe.Message)}
	default:
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, pe.Message)
	}
}

func (r *REST) decodeRows(entityType string, body io.Reader) ([]entity.Record, error) {
	var rows []map[string]any
	if err := json.NewDecoder(body).Decode(&rows); err != nil {
		return nil, err
	}
	recs := make([]entity.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, r.toRecord(entityType, row))
	}
	return recs, nil
}

func (r *REST) decodeRow(entityType, op string, body io.Reader) (entity.Record, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return entity.Record{}, err
	}
	// PostgREST returns a one-element array unless an object representation
	// was negotiated; accept both.
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err == nil {
		return r.toRecord(entityType, row), nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return entity.Record{}, err
	}
	if len(rows) == 0 {
		return entity.Record{}, fmt.Errorf("%s: empty representation: %w", op, ErrNotFound)
	}
	return r.toRecord(entityType, rows[0]), nil
}

func (r *REST) toRecord(entityType string, row map[string]any) entity.Record {
	rec := entity.Record{
		Type:      entityType,
		Attrs:     row,
		FetchedAt: r.now(),
	}
	if id, ok := row["id"].(string); ok {
		rec.ID = id
	}
	rec.UpdatedAt = revisionOf(row)
	return rec
}

// revisionOf extracts the revision marker: updated_at when present, falling
// back to created_at for rows that are never patched.
func revisionOf(row map[string]any) time.Time {
	for _, field := range []string{"updated_at", "created_at"} {
		if s, ok := row[field].(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
