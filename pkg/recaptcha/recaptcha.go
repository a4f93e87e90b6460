package recaptcha

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Transport interface {
	Post(ctx context.Context, url string, contentType string, body string) (int, []byte, error)
}

type HTTPTransport struct {
	Client *http.Client
}

func (t *HTTPTransport) Post(ctx context.Context, url string, contentType string, body string) (int, []byte, error) {

	client := t.Client

	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))

	if err != nil {
		return 0, nil, err
	}

	req.Header.Add("content-type", contentType)

	res, err := client.Do(req)

	if err != nil {
		return 0, nil, err
	}

	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)

	if err != nil {
		return 0, nil, err
	}

	return res.StatusCode, resBody, nil

}

type HTTPError struct {
	OriginalError error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`verification request failed: %v`, e.OriginalError)
}

func (e *HTTPError) Unwrap() error {
	return e.OriginalError
}

type ParseError struct {
	OriginalError error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf(`unable to parse verification response: %v`, e.OriginalError)
}

func (e *ParseError) Unwrap() error {
	return e.OriginalError
}

type ActionMismatchError struct {
	Expected string
	Actual   string
}

func (e *ActionMismatchError) Error() string {
	return fmt.Sprintf(`action mismatch: expected %q, got %q`, e.Expected, e.Actual)
}
