package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/httpclient"
	"github.com/teranos/PTX/run"
)

const apiTimeout = 30 * time.Second

var serverURLFlag string

// apiClient talks to a running ptx server
type apiClient struct {
	base   *url.URL
	client *httpclient.SaferClient
}

// newAPIClient targets rawURL, or the configured local port when empty
func newAPIClient(rawURL string) (*apiClient, error) {
	if rawURL == "" {
		port := am.DefaultServerPort
		if cfg, err := am.Load(); err == nil {
			port = cfg.GetServerPort()
		}
		rawURL = fmt.Sprintf("http://localhost:%d", port)
	}

	// The server is usually on loopback
	client := httpclient.NewSaferClientWithOptions(apiTimeout, httpclient.Options{AllowPrivate: true})
	base, err := client.ValidateURL(rawURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid server URL %q", rawURL), errors.ErrInvalidInput)
	}
	return &apiClient{base: base, client: client}, nil
}

// do sends body as JSON and decodes a JSON reply into out. Error replies
// become errors carrying the server's kind.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	rawPath, query, _ := strings.Cut(path, "?")
	target := c.base.JoinPath(rawPath)
	target.RawQuery = query

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.WithHint(errors.Wrapf(err, "%s %s", method, path), "is 'ptx server' running?")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s %s", method, path)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return errors.Newf("server returned %s", resp.Status)
	}
	if sentinel := errors.SentinelFor(errors.Kind(body.Kind)); sentinel != nil {
		return errors.Mark(errors.Newf("%s", body.Error), sentinel)
	}
	return errors.Newf("%s (%s)", body.Error, resp.Status)
}

func (c *apiClient) jobs(ctx context.Context, status string) ([]run.JobStatus, error) {
	path := "/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []run.JobStatus
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *apiClient) status(ctx context.Context, jobID string) (run.JobStatus, error) {
	var out run.JobStatus
	return out, c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/status", nil, &out)
}

func (c *apiClient) result(ctx context.Context, jobID string) ([]run.Entry, error) {
	var out struct {
		Results []run.Entry `json:"results"`
	}
	return out.Results, c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/result", nil, &out)
}

func (c *apiClient) save(ctx context.Context, jobID, filename string) (string, error) {
	var out struct {
		Message string `json:"message"`
		Path    string `json:"path"`
	}
	body := map[string]string{"job_id": jobID, "filename": filename}
	return out.Path, c.do(ctx, http.MethodPost, "/jobs/save", body, &out)
}

// watch streams status snapshots over the job WebSocket until the server
// closes it. fn is called for every snapshot.
func (c *apiClient) watch(ctx context.Context, jobID string, fn func(run.JobStatus)) error {
	wsURL := *c.base.JoinPath("/ws/jobs", url.PathEscape(jobID))
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return apiError(resp)
		}
		return errors.WithHint(errors.Wrap(err, "failed to open job stream"), "is 'ptx server' running?")
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var status run.JobStatus
		if err := conn.ReadJSON(&status); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "job stream interrupted")
		}
		fn(status)
	}
}
