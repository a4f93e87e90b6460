package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
)

var enterpriseUrl = `https://recaptchaenterprise.googleapis.com/v1/projects/%s/assessments?key=%s`

type Event struct {
	Token          string `json:"token"`
	SiteKey        string `json:"siteKey"`
	UserAgent      string `json:"userAgent,omitempty"`
	UserIpAddress  string `json:"userIpAddress,omitempty"`
	ExpectedAction string `json:"expectedAction,omitempty"`
}

type RiskAnalysis struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

type TokenProperties struct {
	Valid         bool      `json:"valid"`
	InvalidReason string    `json:"invalidReason"`
	Hostname      string    `json:"hostname"`
	Action        string    `json:"action"`
	CreateTime    time.Time `json:"createTime"`
}

type Assessment struct {
	Name            string          `json:"name"`
	Event           Event           `json:"event"`
	RiskAnalysis    RiskAnalysis    `json:"riskAnalysis"`
	TokenProperties TokenProperties `json:"tokenProperties"`
}

// APIError is the structured error body the assessments endpoint returns
// for rejected requests (bad key, unknown project, etc).
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf(`assessment request rejected: %d %s: %s`, e.Code, e.Status, e.Message)
}

type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {

	if e.Reason == "" {
		return `token invalid: unknown reason`
	}

	return fmt.Sprintf(`token invalid: %s`, e.Reason)
}

type EnterpriseVerifier struct {
	Project   string
	APIKey    string
	SiteKey   string
	Transport Transport
}

func (v *EnterpriseVerifier) transport() Transport {

	if v.Transport == nil {
		return &HTTPTransport{}
	}

	return v.Transport
}

// VerifyDetailed creates an assessment for the token and returns it whether
// or not the token properties came back valid. The caller decides what to
// do with the score; the only check made here is the expected action, when
// one is supplied.
func (v *EnterpriseVerifier) VerifyDetailed(ctx context.Context, token string, action string) (*Assessment, error) {

	event := map[string]interface{}{
		"token":   token,
		"siteKey": v.SiteKey,
	}

	if action != "" {
		event["expectedAction"] = action
	}

	reqJson := map[string]interface{}{
		"event": event,
	}

	reqBody, _ := json.Marshal(reqJson)

	status, body, err := v.transport().Post(ctx, fmt.Sprintf(enterpriseUrl, v.Project, v.APIKey), `application/json`, string(reqBody))

	if err != nil {
		return nil, &HTTPError{OriginalError: err}
	}

	resJson, err := fastjson.ParseBytes(body)

	if err != nil {
		return nil, &ParseError{OriginalError: err}
	}

	if resJson.Exists("error") {
		return nil, &APIError{
			Code:    resJson.GetInt("error", "code"),
			Message: string(resJson.GetStringBytes("error", "message")),
			Status:  string(resJson.GetStringBytes("error", "status")),
		}
	}

	if status < 200 || status > 299 {
		return nil, &ParseError{OriginalError: fmt.Errorf(`unexpected status code: %d`, status)}
	}

	var assessment Assessment

	if err := json.Unmarshal(body, &assessment); err != nil {
		return nil, &ParseError{OriginalError: err}
	}

	if action != "" && assessment.TokenProperties.Action != action {
		return nil, &ActionMismatchError{Expected: action, Actual: assessment.TokenProperties.Action}
	}

	return &assessment, nil

}

// Verify reduces VerifyDetailed to a pass/fail check on the token
// properties.
func (v *EnterpriseVerifier) Verify(ctx context.Context, token string, action string) error {

	assessment, err := v.VerifyDetailed(ctx, token, action)

	if err != nil {
		return err
	}

	if assessment.TokenProperties.Valid {
		return nil
	}

	return &InvalidTokenError{Reason: assessment.TokenProperties.InvalidReason}

}

func VerifyEnterprise(ctx context.Context, project string, apiKey string, siteKey string, token string, action string) error {
	v := &EnterpriseVerifier{Project: project, APIKey: apiKey, SiteKey: siteKey}
	return v.Verify(ctx, token, action)
}

func VerifyEnterpriseDetailed(ctx context.Context, project string, apiKey string, siteKey string, token string, action string) (*Assessment, error) {
	v := &EnterpriseVerifier{Project: project, APIKey: apiKey, SiteKey: siteKey}
	return v.VerifyDetailed(ctx, token, action)
}
