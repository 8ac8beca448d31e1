package apiserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/decision"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.EngineConfig{
		Categories: []config.Category{
			{ID: "core", Tier: 1, DefaultSafe: true},
			{
				ID: "git", Tier: 2, DefaultSafe: true,
				Keywords: config.KeywordTiers{Direct: []string{"git", "commit"}},
			},
		},
	}
	cfg.ApplyDefaults()

	engine, err := decision.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(NewServer(engine, 0).setupRoutes())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestDecisionEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := `{"query": "commit the changes"}`
	resp, err := http.Post(ts.URL+"/v1/decision", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var d struct {
		RequestID  string   `json:"request_id"`
		Categories []string `json:"categories"`
		Level      string   `json:"level"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))

	assert.NotEmpty(t, d.RequestID)
	assert.Equal(t, "L1", d.Level)
	assert.Contains(t, d.Categories, "git")
	assert.Contains(t, d.Categories, "core")
}

func TestDecisionEndpointRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/decision", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOutcomeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/outcome", "application/json",
		strings.NewReader(`{"request_id": "some-id", "used": ["git"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/outcome", "application/json", strings.NewReader(`{"used": ["git"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Breaker struct {
			Phase string `json:"phase"`
		} `json:"breaker"`
		Categories int  `json:"categories"`
		Emergency  bool `json:"emergency"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	assert.Equal(t, "CLOSED", status.Breaker.Phase)
	assert.Equal(t, 2, status.Categories)
	assert.False(t, status.Emergency)
}

func TestRollbackWithoutRetuneConflicts(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/learning/rollback", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
