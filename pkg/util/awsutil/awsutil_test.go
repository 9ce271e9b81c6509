package awsutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Region: "us-east-1", AccessKeyID: "AKID"}
	require.Error(t, cfg.Validate())

	require.NoError(t, cfg.SecretAccessKey.Set("secret"))
	require.NoError(t, cfg.Validate())

	require.Error(t, (&Config{}).Validate())
}

func TestSigV4RoundTripper(t *testing.T) {
	gotAuth, gotBody := atomic.NewString(""), atomic.NewString("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		gotBody.Store(string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{Region: "us-west-2", AccessKeyID: "AKID"}
	require.NoError(t, cfg.SecretAccessKey.Set("secret"))
	sess, err := NewSession(cfg, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: NewSigV4RoundTripper(sess, "monitoring", nil)}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, gotAuth.Load(), "AWS4-HMAC-SHA256 Credential=AKID/")
	assert.Contains(t, gotAuth.Load(), "/us-west-2/monitoring/aws4_request")
	assert.Equal(t, `{"a":1}`, gotBody.Load())
	assert.Empty(t, req.Header.Get("Authorization"))
}
