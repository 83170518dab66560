package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sportlink/sportlink/types"
	httputils "sportlink/sportlink/utils/http"
)

var ErrSessionNotFound = errors.New("session not found")

// BackendClient talks to the SportLink REST backend. It does not retry.
type BackendClient struct {
	baseURL string
	http    *http.Client
}

func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *BackendClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// FetchByStatus implements Fetcher.
func (c *BackendClient) FetchByStatus(ctx context.Context, actor types.Actor, status Status) ([]SessionRecord, error) {
	var u string
	switch actor.Role {
	case types.RoleCliente:
		u = c.endpoint("Sesion", "obtener", "idCliente", actor.ID, "estado", string(status))
	case types.RoleEntrenador:
		u = c.endpoint("Sesion", "obtener", "estado", string(status), "idEntrenador", actor.ID)
	default:
		return nil, fmt.Errorf("fetch sessions: unsupported role %q", actor.Role)
	}
	var recs []SessionRecord
	if err := httputils.GetJSON(ctx, c.http, u, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []SessionRecord{}
	}
	return recs, nil
}

// GetSession loads one booking by id.
func (c *BackendClient) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec *SessionRecord
	err := httputils.GetJSON(ctx, c.http, c.endpoint("Sesion", "obtener", id), &rec)
	var se *httputils.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return rec, nil
}

// UpdateSession sends PUT /Sesion/actualizar.
func (c *BackendClient) UpdateSession(ctx context.Context, u SessionUpdate) error {
	return httputils.PutJSON(ctx, c.http, c.endpoint("Sesion", "actualizar"), u, nil)
}
