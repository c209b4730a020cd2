package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/config"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	cfg := config.Default()
	cfg.Jobs.QueueCapacity = 100
	cfg.Jobs.IngestSessionIdle = 5 * time.Millisecond
	sup := tenant.New(cfg, nil)
	t.Cleanup(func() { sup.Shutdown() })
	return NewServer(":0", sup, apiKey)
}

func do(s *Server, method, path, tenantID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tenantID != "" {
		req.Header.Set("X-Project-ID", tenantID)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAddMemoryThenGet(t *testing.T) {
	s := newTestServer(t, "")

	rec := do(s, http.MethodPost, "/v1/memories", "acme", `{"content":"hello world","cues":["greeting"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var addResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addResp))
	id, _ := addResp["id"].(string)
	require.NotEmpty(t, id)

	rec = do(s, http.MethodGet, "/v1/memories/"+id, "acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddMemoryWithoutTenantFails(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/v1/memories", "", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecallReturnsWrittenMemory(t *testing.T) {
	s := newTestServer(t, "")
	do(s, http.MethodPost, "/v1/memories", "acme", `{"content":"italian food review","cues":["food","italian"]}`)

	rec := do(s, http.MethodGet, "/v1/recall?cues=food&limit=10", "acme", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	results, _ := resp["results"].([]any)
	assert.NotEmpty(t, results)
}

func TestReinforceIncrementsCount(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/v1/memories", "acme", `{"content":"x","cues":["a"]}`)
	var addResp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &addResp)
	id := addResp["id"].(string)

	rec = do(s, http.MethodPost, "/v1/memories/"+id+"/reinforce", "acme", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var reinforceResp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &reinforceResp)
	assert.EqualValues(t, 1, reinforceResp["reinforcement_count"])
}

func TestAliasAddThenLexiconInspectDoesNotError(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/v1/aliases", "acme", `{"from":"hi","to":"hello","weight":0.9}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/v1/lexicon/hello", "acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAliasAddDefaultsWeightWhenOmitted(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/v1/aliases", "acme", `{"from":"hi","to":"hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAliasAddRejectsOutOfRangeWeight(t *testing.T) {
	s := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/v1/aliases", "acme", `{"from":"hi","to":"hello","weight":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_WEIGHT", resp["code"])
}

func TestAPIKeyGateRejectsMissingKey(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("X-Project-ID", "acme")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatsReturnsCounts(t *testing.T) {
	s := newTestServer(t, "")
	do(s, http.MethodPost, "/v1/memories", "acme", `{"content":"x","cues":["a","b"]}`)

	rec := do(s, http.MethodGet, "/v1/stats", "acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.EqualValues(t, 1, resp["total_memories"])
}
