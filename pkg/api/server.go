// Package api implements CueMap's HTTP wire protocol: add_memory,
// recall, reinforce, get_memory, aliases.add,
// lexicon.inspect, lexicon.wire, stats. One mux, one Server struct holding
// the tenant supervisor, tenant resolution from the X-Project-ID header
// only, and one apierr envelope for every error path.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/buger/jsonparser"

	"github.com/cuemap-dev/cuemap/pkg/alias"
	"github.com/cuemap-dev/cuemap/pkg/api/apierr"
	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/engine"
	"github.com/cuemap-dev/cuemap/pkg/recall"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

// defaultSessionID is the ingestion session key used for every HTTP write
// within a tenant. A session opens on the first write of a batch and
// auto-closes after the ingestion idle window elapses; the API layer
// does not expose session boundaries to callers, so all of a tenant's
// concurrent writers share one rolling session.
const defaultSessionID = "default"

// maxBodyBytes bounds request body reads via io.LimitReader.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	supervisor *tenant.Supervisor
	apiKey     string
	httpServer *http.Server
}

// NewServer builds a Server. apiKey, if non-empty, gates every request
// behind a matching X-API-Key header.
func NewServer(addr string, supervisor *tenant.Supervisor, apiKey string) *Server {
	s := &Server{supervisor: supervisor, apiKey: apiKey}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/memories", s.handleMemories)
	mux.HandleFunc("/v1/memories/", s.handleMemoryByID)
	mux.HandleFunc("/v1/recall", s.handleRecall)
	mux.HandleFunc("/v1/aliases", s.handleAliasAdd)
	mux.HandleFunc("/v1/lexicon/wire", s.handleLexiconWire)
	mux.HandleFunc("/v1/lexicon/", s.handleLexiconInspect)
	mux.HandleFunc("/v1/stats", s.handleStats)

	s.httpServer = &http.Server{Addr: addr, Handler: s.withAuth(mux)}
	return s
}

// ListenAndServe blocks serving HTTP until the server is stopped.
func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			apierr.Unauthorized(w, "invalid or missing X-API-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// tenantEngine resolves X-Project-ID to its engine, writing an error
// response and returning ok=false if resolution fails.
func (s *Server) tenantEngine(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	id := r.Header.Get("X-Project-ID")
	if id == "" {
		apierr.TenantRequired(w)
		return nil, false
	}
	eng, err := s.supervisor.GetOrCreate(core.TenantID(id))
	if err != nil {
		apierr.Unauthorized(w, err.Error())
		return nil, false
	}
	return eng, true
}

// handleMemories dispatches POST /v1/memories (add_memory).
func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		apierr.InvalidJSON(w)
		return
	}

	content, err := jsonparser.GetString(body, "content")
	if err != nil {
		apierr.BadRequest(w, apierr.CodeBadRequest, "content field required")
		return
	}

	var cues []string
	jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if dataType == jsonparser.String {
			cues = append(cues, string(value))
		}
	}, "cues")

	start := time.Now()
	res, err := eng.Write(content, cues, time.Now().Unix(), defaultSessionID)
	if err != nil {
		apierr.Internal(w, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"id":            res.ID,
		"accepted_cues": res.AcceptedCues,
		"rejected_cues": res.RejectedCues,
		"latency_ms":    time.Since(start).Milliseconds(),
	})
}

// handleMemoryByID dispatches GET /v1/memories/{id} (get_memory) and
// POST /v1/memories/{id}/reinforce (reinforce).
func (s *Server) handleMemoryByID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path[len("/v1/memories/"):]
	if path == "" {
		apierr.NotFound(w, apierr.CodeMemoryNotFound, "memory id required in path")
		return
	}

	id, action := splitTrailingSegment(path, "/reinforce")
	if action {
		s.handleReinforce(w, r, core.MemoryID(id))
		return
	}

	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}
	m, err := eng.Get(core.MemoryID(path))
	if err != nil {
		apierr.MemoryNotFound(w)
		return
	}
	json.NewEncoder(w).Encode(m)
}

func (s *Server) handleReinforce(w http.ResponseWriter, r *http.Request, id core.MemoryID) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}

	body, _ := readBody(r)
	var extraCues []string
	jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if dataType == jsonparser.String {
			extraCues = append(extraCues, string(value))
		}
	}, "extra_cues")

	m, err := eng.Reinforce(id, extraCues)
	if err != nil {
		apierr.MemoryNotFound(w)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"id": m.ID, "reinforcement_count": m.ReinforcementCount})
}

// handleRecall dispatches GET /v1/recall (recall).
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := engine.RecallRequest{
		Cues:      q["cues"],
		QueryText: q.Get("query_text"),
		Options: recall.Options{
			Limit:                       queryInt(q, "limit", 10),
			DisablePatternCompletion:    queryBool(q, "disable_pattern_completion"),
			DisableSalienceBias:         queryBool(q, "disable_salience_bias"),
			DisableSystemsConsolidation: queryBool(q, "disable_systems_consolidation"),
			FastMode:                    queryBool(q, "fast_mode"),
			Explain:                     queryBool(q, "explain"),
		},
	}

	start := time.Now()
	results := eng.Recall(req, defaultSessionID)
	elapsed := time.Since(start)

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		item := map[string]any{
			"id":                  res.ID,
			"content":             res.Memory.Content,
			"score":               res.Score,
			"intersection_count":  res.IntersectionCount,
			"reinforcement_score": res.ReinforcementScore,
			"salience_score":      res.SalienceScore,
			"recency_score":       res.RecencyScore,
			"match_integrity":     res.MatchIntegrity,
		}
		if res.Explain != nil {
			item["explain"] = res.Explain
		}
		out = append(out, item)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"results":           out,
		"engine_latency_ms": elapsed.Milliseconds(),
	})
}

// handleAliasAdd dispatches POST /v1/aliases (aliases.add).
func (s *Server) handleAliasAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		apierr.InvalidJSON(w)
		return
	}
	from, _ := jsonparser.GetString(body, "from")
	to, _ := jsonparser.GetString(body, "to")
	weight, weightErr := jsonparser.GetFloat(body, "weight")
	if from == "" || to == "" {
		apierr.CueRequired(w)
		return
	}
	if weightErr != nil {
		weight = alias.ProposedWeight
	} else if weight <= 0 || weight > 1 {
		apierr.InvalidWeight(w)
		return
	}

	eng.Aliases().Add(core.Normalize(from), core.Normalize(to), weight)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleLexiconWire dispatches POST /v1/lexicon/wire (lexicon.wire).
func (s *Server) handleLexiconWire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		apierr.InvalidJSON(w)
		return
	}
	token, _ := jsonparser.GetString(body, "token")
	canonical, _ := jsonparser.GetString(body, "canonical")
	if token == "" || canonical == "" {
		apierr.CueRequired(w)
		return
	}
	eng.Lexicon().Wire(core.Normalize(token), core.Normalize(canonical))
	json.NewEncoder(w).Encode(map[string]string{"status": "wired"})
}

// handleLexiconInspect dispatches GET /v1/lexicon/{cue} (lexicon.inspect).
func (s *Server) handleLexiconInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	cue := r.URL.Path[len("/v1/lexicon/"):]
	if cue == "" {
		apierr.CueRequired(w)
		return
	}
	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}
	outgoing, incoming := eng.Lexicon().Inspect(core.Normalize(cue))
	json.NewEncoder(w).Encode(map[string]any{"cue": cue, "outgoing": outgoing, "incoming": incoming})
}

// handleStats dispatches GET /v1/stats (stats).
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	eng, ok := s.tenantEngine(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"total_memories": eng.Memories().Len(),
		"total_cues":     eng.CueIndex().CueCount(),
	})
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func queryInt(q map[string][]string, key string, def int) int {
	v, ok := q[key]
	if !ok || len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return def
	}
	return n
}

func queryBool(q map[string][]string, key string) bool {
	v, ok := q[key]
	if !ok || len(v) == 0 {
		return false
	}
	b, _ := strconv.ParseBool(v[0])
	return b
}

func splitTrailingSegment(path, suffix string) (string, bool) {
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)], true
	}
	return path, false
}
