package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var verifyUrl = `https://www.google.com/recaptcha/api/siteverify`

type ErrorCode string

// Error codes reported by the siteverify endpoint. Anything else the
// service returns is carried through verbatim.
const (
	MissingInputSecret   ErrorCode = "missing-input-secret"
	InvalidInputSecret   ErrorCode = "invalid-input-secret"
	MissingInputResponse ErrorCode = "missing-input-response"
	InvalidInputResponse ErrorCode = "invalid-input-response"
	BadRequest           ErrorCode = "bad-request"
	TimeoutOrDuplicate   ErrorCode = "timeout-or-duplicate"
)

type Response struct {
	Success     bool        `json:"success"`
	Score       float64     `json:"score"`
	Action      string      `json:"action"`
	ChallengeTS string      `json:"challenge_ts"`
	Hostname    string      `json:"hostname"`
	ErrorCodes  []ErrorCode `json:"error-codes"`
}

type UnsuccessfulError struct {
	Codes []ErrorCode
}

func (e *UnsuccessfulError) Error() string {

	codes := make([]string, len(e.Codes))

	for i, code := range e.Codes {
		codes[i] = string(code)
	}

	return fmt.Sprintf(`verification unsuccessful: %s`, strings.Join(codes, `, `))
}

func (e *UnsuccessfulError) Has(code ErrorCode) bool {

	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}

	return false
}

type Verifier struct {
	Secret    string
	Transport Transport
}

func (v *Verifier) transport() Transport {

	if v.Transport == nil {
		return &HTTPTransport{}
	}

	return v.Transport
}

// VerifyV3 posts the token to siteverify and returns the parsed response
// whether or not the service marked it successful. Thresholding the score
// is up to the caller.
func (v *Verifier) VerifyV3(ctx context.Context, token string, remoteIp net.IP) (*Response, error) {

	params := url.Values{}
	params.Set("secret", v.Secret)
	params.Set("response", token)

	if remoteIp != nil {
		params.Set("remoteip", remoteIp.String())
	}

	status, body, err := v.transport().Post(ctx, verifyUrl, `application/x-www-form-urlencoded`, params.Encode())

	if err != nil {
		return nil, &HTTPError{OriginalError: err}
	}

	if status < 200 || status > 299 {
		return nil, &ParseError{OriginalError: fmt.Errorf(`unexpected status code: %d`, status)}
	}

	var response Response

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &ParseError{OriginalError: err}
	}

	return &response, nil

}

// Verify reduces VerifyV3 to a pass/fail check, carrying the service's
// error codes when it fails.
func (v *Verifier) Verify(ctx context.Context, token string, remoteIp net.IP) error {

	response, err := v.VerifyV3(ctx, token, remoteIp)

	if err != nil {
		return err
	}

	if response.Success {
		return nil
	}

	return &UnsuccessfulError{Codes: response.ErrorCodes}

}

func Verify(ctx context.Context, secret string, token string, remoteIp net.IP) error {
	v := &Verifier{Secret: secret}
	return v.Verify(ctx, token, remoteIp)
}

func VerifyV3(ctx context.Context, secret string, token string, remoteIp net.IP) (*Response, error) {
	v := &Verifier{Secret: secret}
	return v.VerifyV3(ctx, token, remoteIp)
}
