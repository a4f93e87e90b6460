package recaptcha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fastjson"
)

var assessmentFixture = `{
	"name": "projects/my-project/assessments/1234567890",
	"event": {"token": "tok", "siteKey": "site-key", "expectedAction": "login"},
	"riskAnalysis": {"score": 0.9, "reasons": ["LOW_CONFIDENCE"]},
	"tokenProperties": {"valid": true, "invalidReason": "", "hostname": "example.com", "action": "login", "createTime": "2023-01-01T00:00:00Z"}
}`

func enterpriseServer(t *testing.T, handler http.HandlerFunc) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	prev := enterpriseUrl
	enterpriseUrl = server.URL + `/v1/projects/%s/assessments?key=%s`
	t.Cleanup(func() { enterpriseUrl = prev })
}

// TestAssessmentFixture checks that the documented assessment shape
// deserializes with the score and validity intact.
func TestAssessmentFixture(t *testing.T) {
	var assessment Assessment

	assert.NoError(t, json.Unmarshal([]byte(assessmentFixture), &assessment))
	assert.True(t, assessment.TokenProperties.Valid)
	assert.Equal(t, 0.9, assessment.RiskAnalysis.Score)
	assert.Equal(t, "login", assessment.TokenProperties.Action)
	assert.Equal(t, []string{"LOW_CONFIDENCE"}, assessment.RiskAnalysis.Reasons)
	assert.Equal(t, 2023, assessment.TokenProperties.CreateTime.Year())
}

// TestVerifyEnterpriseDetailed checks the full round trip: the request body
// carries the event fields, the path carries the project, the key rides the
// query string, and the assessment comes back typed.
func TestVerifyEnterpriseDetailed(t *testing.T) {
	token := gofakeit.LetterN(64)

	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/my-project/assessments", r.URL.Path)
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		reqJson, err := fastjson.ParseBytes(body)
		assert.NoError(t, err)
		assert.Equal(t, token, string(reqJson.GetStringBytes("event", "token")))
		assert.Equal(t, "site-key", string(reqJson.GetStringBytes("event", "siteKey")))
		assert.Equal(t, "login", string(reqJson.GetStringBytes("event", "expectedAction")))

		w.Write([]byte(assessmentFixture))
	})

	assessment, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", token, "login")

	assert.NoError(t, err)
	assert.True(t, assessment.TokenProperties.Valid)
	assert.Equal(t, 0.9, assessment.RiskAnalysis.Score)
}

// TestVerifyEnterpriseDetailedNoAction checks that expectedAction is left
// out of the request entirely when no action is supplied, and that no
// action check is made on the response.
func TestVerifyEnterpriseDetailedNoAction(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		reqJson, err := fastjson.ParseBytes(body)
		assert.NoError(t, err)
		assert.False(t, reqJson.Exists("event", "expectedAction"))

		w.Write([]byte(assessmentFixture))
	})

	assessment, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "")

	assert.NoError(t, err)
	assert.Equal(t, "login", assessment.TokenProperties.Action)
}

// TestVerifyEnterpriseActionMismatch checks that a response action that
// disagrees with the expected one is classified as an ActionMismatchError
// with both values populated.
func TestVerifyEnterpriseActionMismatch(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(assessmentFixture))
	})

	_, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "signup")

	var mismatch *ActionMismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "signup", mismatch.Expected)
	assert.Equal(t, "login", mismatch.Actual)
}

// TestVerifyEnterpriseInvalidToken checks that valid=false surfaces from
// VerifyEnterprise as an InvalidTokenError carrying the service's reason,
// while VerifyEnterpriseDetailed still returns the assessment.
func TestVerifyEnterpriseInvalidToken(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"projects/my-project/assessments/1","tokenProperties":{"valid":false,"invalidReason":"EXPIRED","action":"login"},"riskAnalysis":{"score":0.0}}`))
	})

	err := VerifyEnterprise(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "login")

	var invalid *InvalidTokenError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "EXPIRED", invalid.Reason)

	assessment, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "login")
	assert.NoError(t, err)
	assert.False(t, assessment.TokenProperties.Valid)
}

// TestVerifyEnterpriseApiError checks that the endpoint's structured error
// body becomes an APIError.
func TestVerifyEnterpriseApiError(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})

	err := VerifyEnterprise(context.Background(), "my-project", "bad-key", "site-key", gofakeit.LetterN(64), "")

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
	assert.Equal(t, "API key not valid", apiErr.Message)
}

// TestVerifyEnterpriseTransportError checks the refused-connection path for
// both enterprise entry points.
func TestVerifyEnterpriseTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverUrl := server.URL
	server.Close()

	defer func(prev string) { enterpriseUrl = prev }(enterpriseUrl)
	enterpriseUrl = serverUrl + `/v1/projects/%s/assessments?key=%s`

	err := VerifyEnterprise(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "")

	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)

	_, err = VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "")
	assert.ErrorAs(t, err, &httpErr)
}

// TestVerifyEnterpriseMalformedResponse checks that a body that is neither
// an assessment nor an error document comes back as a ParseError.
func TestVerifyEnterpriseMalformedResponse(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>no</html>`))
	})

	_, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "")

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

// TestVerifyEnterpriseBadStatus checks that a non-2xx response without an
// error document is a ParseError, not a silent decode of garbage.
func TestVerifyEnterpriseBadStatus(t *testing.T) {
	enterpriseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{}`))
	})

	_, err := VerifyEnterpriseDetailed(context.Background(), "my-project", "api-key", "site-key", gofakeit.LetterN(64), "")

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
