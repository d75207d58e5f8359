package statusd_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorbucket/credmon/renewal"
	"github.com/mirrorbucket/credmon/statusd"
	"github.com/mirrorbucket/credmon/supervisor"
)

type fakeState struct{ snap supervisor.Snapshot }

func (f *fakeState) State() supervisor.Snapshot { return f.snap }

func startServer(t *testing.T, cacheDir string, state statusd.StateSource) *httptest.Server {
	t.Helper()
	s := statusd.New(":0", "build", cacheDir, 15*time.Minute, state)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	srv := startServer(t, t.TempDir(), &fakeState{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestStatus_EmptyCache(t *testing.T) {
	srv := startServer(t, t.TempDir(), &fakeState{})

	body := getJSON(t, srv.URL+"/status")

	assert.Equal(t, "build", body["profile"])
	assert.Equal(t, false, body["needs_renewal"])
	tokens := body["tokens"].(map[string]any)
	assert.Equal(t, float64(0), tokens["total"])
	assert.NotContains(t, body, "earliest_expiry_seconds")
	assert.NotContains(t, body, "last_renewal")
}

func TestStatus_UrgentTokenAndLastRenewal(t *testing.T) {
	cacheDir := t.TempDir()
	expiresAt := time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339)
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "tok.json"),
		[]byte(`{"startUrl": "https://corp.awsapps.com/start", "expiresAt": "`+expiresAt+`"}`), 0o600))

	state := &fakeState{snap: supervisor.Snapshot{
		LastAttempt: time.Now().Add(-time.Minute),
		LastReason:  renewal.ReasonFileChanged,
		LastOutcome: "success",
		Executions:  4,
	}}
	srv := startServer(t, cacheDir, state)

	body := getJSON(t, srv.URL+"/status")

	assert.Equal(t, true, body["needs_renewal"])
	tokens := body["tokens"].(map[string]any)
	assert.Equal(t, float64(1), tokens["total"])
	assert.Equal(t, float64(1), tokens["urgent"])

	assert.Contains(t, body, "earliest_expiry_seconds")
	last := body["last_renewal"].(map[string]any)
	assert.Equal(t, "file-changed", last["reason"])
	assert.Equal(t, "success", last["outcome"])
	assert.Equal(t, float64(4), body["renewal_executions"])
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := startServer(t, t.TempDir(), &fakeState{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
