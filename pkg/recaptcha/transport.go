package recaptcha

import (
	"context"
	"io"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
	http "github.com/saucesteals/fhttp"
	cookiejar "github.com/saucesteals/fhttp/cookiejar"
	http2 "github.com/saucesteals/fhttp/http2"
)

// ChromeTransport posts through an fhttp client with a Chrome TLS hello,
// for callers that need verification traffic to blend with the rest of
// their browser-shaped egress. Proxy is optional.
type ChromeTransport struct {
	client *http.Client
}

func NewChromeTransport(proxy *url.URL) (*ChromeTransport, error) {

	cj, _ := cookiejar.New(nil)

	t1 := &http.Transport{GetTlsClientHelloSpec: func() *utls.ClientHelloSpec {
		spec, _ := utls.UTLSIdToSpec(utls.HelloChrome_106_Shuffle)
		return &spec
	}}

	if proxy != nil {
		t1.Proxy = http.ProxyURL(proxy)
	}

	t2, err := http2.ConfigureTransports(t1)

	if err != nil {
		return nil, err
	}

	t2.Settings = []http2.Setting{
		{ID: http2.SettingHeaderTableSize, Val: 65536},
		{ID: http2.SettingEnablePush, Val: 0},
		{ID: http2.SettingMaxConcurrentStreams, Val: 1000},
		{ID: http2.SettingInitialWindowSize, Val: 6291456},
		{ID: http2.SettingMaxHeaderListSize, Val: 262144},
	}

	t2.MaxHeaderListSize = 262144
	t2.InitialWindowSize = 6291456
	t2.HeaderTableSize = 65536

	client := &http.Client{Transport: t1, Jar: cj}

	return &ChromeTransport{client: client}, nil

}

func (t *ChromeTransport) Post(ctx context.Context, url string, contentType string, body string) (int, []byte, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))

	if err != nil {
		return 0, nil, err
	}

	req.Header.Add("content-type", contentType)

	res, err := t.client.Do(req)

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
