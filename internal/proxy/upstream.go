package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/routing"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

const unaryTimeout = 120 * time.Second

// upstream dispatches translated request bodies to provider endpoints.
// Streaming requests get no deadline; the client connection bounds them.
type upstream struct {
	unary  *http.Client
	stream *http.Client
}

func newUpstream() *upstream {
	transport := &http.Transport{
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
	return &upstream{
		unary:  &http.Client{Transport: transport, Timeout: unaryTimeout},
		stream: &http.Client{Transport: transport},
	}
}

// buildRequest assembles the upstream POST with the provider's auth scheme:
// bearer header, named header, or URL query parameter.
func buildRequest(ctx context.Context, route *routing.Route, body []byte, stream bool) (*http.Request, error) {
	endpoint := route.Endpoint(stream)

	if route.Provider.AuthScheme == catalog.AuthQuery {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set(route.Provider.AuthParam, route.Credential.Token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	switch route.Provider.AuthScheme {
	case catalog.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+route.Credential.Token)
	case catalog.AuthHeader:
		req.Header.Set(route.Provider.AuthHeader, route.Credential.Token)
	}
	for k, v := range route.Provider.ExtraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Do performs a unary upstream call and returns the response body.
// Non-2xx statuses come back as *apierr.Error with the upstream text
// attached for diagnostics.
func (u *upstream) Do(ctx context.Context, route *routing.Route, body []byte) ([]byte, *apierr.Error) {
	req, err := buildRequest(ctx, route, body, false)
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, "failed to build upstream request")
	}

	resp, err := u.unary.Do(req)
	if err != nil {
		return nil, apierr.Newf(apierr.KindUpstreamTransport, "upstream request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apierr.Newf(apierr.KindUpstreamTransport, "reading upstream response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.Upstream(resp.StatusCode, string(data))
	}
	return data, nil
}

// Open starts a streaming upstream call. The caller owns the returned body
// and must close it; cancellation flows through ctx.
func (u *upstream) Open(ctx context.Context, route *routing.Route, body []byte) (io.ReadCloser, *apierr.Error) {
	req, err := buildRequest(ctx, route, body, true)
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, "failed to build upstream request")
	}

	resp, err := u.stream.Do(req)
	if err != nil {
		return nil, apierr.Newf(apierr.KindUpstreamTransport, "upstream request failed: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, apierr.Upstream(resp.StatusCode, string(data))
	}
	return resp.Body, nil
}
