package util

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
)

// RequestOption decorates an outgoing request.
type RequestOption func(req *http.Request)

// WithBasicAuth sets basic auth credentials when user is not empty.
func WithBasicAuth(user, password string) RequestOption {
	return func(req *http.Request) {
		if user != "" {
			req.SetBasicAuth(user, password)
		}
	}
}

// DoHTTPRequest performs an HTTP GET, or a POST when requestBody is set, and returns the
// response body. A 404 maps to ErrNotFound, an unreachable host to ErrServiceUnavailable and
// any other failure to ErrServiceError.
func DoHTTPRequest(ctx context.Context, timeout time.Duration, url string, requestBody []byte, opts ...RequestOption) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancelFn context.CancelFunc

		ctx, cancelFn = context.WithTimeout(ctx, timeout)
		defer cancelFn()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewServiceError("failed to create http request", err)
	}

	if requestBody != nil {
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
		req.ContentLength = int64(len(requestBody))
		req.Method = http.MethodPost
		req.Header.Set("Content-Type", "application/json")
	}

	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewContextCanceledError("http request [%s] aborted", url, ctx.Err())
		}

		return nil, errors.NewServiceUnavailableError("http request [%s] failed", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewServiceError("http request [%s] failed to read body", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		errFn := errors.NewServiceError
		if resp.StatusCode == http.StatusNotFound {
			errFn = errors.NewNotFoundError
		}

		return body, errFn("http request [%s] returned status code [%d] with body [%s]", url, resp.StatusCode, string(body))
	}

	return body, nil
}
