// sportlink/utils/http/httputils.go
package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: bad status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func GetJSON(ctx context.Context, client *http.Client, url string, resp interface{}) error {
	return do(ctx, client, http.MethodGet, url, nil, resp)
}

func PostJSON(ctx context.Context, client *http.Client, url string, body, resp interface{}) error {
	return do(ctx, client, http.MethodPost, url, body, resp)
}

func PutJSON(ctx context.Context, client *http.Client, url string, body, resp interface{}) error {
	return do(ctx, client, http.MethodPut, url, body, resp)
}

func do(ctx context.Context, client *http.Client, method, url string, body, resp interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r, err := client.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode < 200 || r.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(r.Body, 512))
		return &StatusError{Method: method, URL: url, Code: r.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if resp == nil {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, resp)
}
