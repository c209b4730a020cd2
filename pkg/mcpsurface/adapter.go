package mcpsurface

import (
	"context"
	"time"

	"github.com/cuemap-dev/cuemap/pkg/core"
	"github.com/cuemap-dev/cuemap/pkg/engine"
	"github.com/cuemap-dev/cuemap/pkg/recall"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

// defaultSessionID mirrors pkg/api's fixed ingestion session key: MCP
// callers don't carry a session boundary either, so every tool call against
// a tenant shares the same rolling session.
const defaultSessionID = "default"

// SupervisorBackend adapts a tenant.Supervisor to the Backend interface,
// reusing the same engine operations pkg/api dispatches to over HTTP.
type SupervisorBackend struct {
	Supervisor *tenant.Supervisor
}

// NewSupervisorBackend builds a Backend over sup.
func NewSupervisorBackend(sup *tenant.Supervisor) *SupervisorBackend {
	return &SupervisorBackend{Supervisor: sup}
}

func (b *SupervisorBackend) engine(tenantID string) (*engine.Engine, error) {
	return b.Supervisor.GetOrCreate(core.TenantID(tenantID))
}

// AddMemory writes content under the given cues, mirroring
// (*api.Server).handleMemories.
func (b *SupervisorBackend) AddMemory(_ context.Context, tenantID, content string, cues []string) (map[string]any, error) {
	eng, err := b.engine(tenantID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := eng.Write(content, cues, time.Now().Unix(), defaultSessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":            string(res.ID),
		"accepted_cues": res.AcceptedCues,
		"rejected_cues": res.RejectedCues,
		"latency_ms":    time.Since(start).Milliseconds(),
	}, nil
}

// Recall resolves cues or queryText to ranked memories, mirroring
// (*api.Server).handleRecall.
func (b *SupervisorBackend) Recall(_ context.Context, tenantID string, cues []string, queryText string, limit int) (map[string]any, error) {
	eng, err := b.engine(tenantID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	req := engine.RecallRequest{
		Cues:      cues,
		QueryText: queryText,
		Options:   recall.Options{Limit: limit},
	}

	start := time.Now()
	results := eng.Recall(req, defaultSessionID)
	elapsed := time.Since(start)

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{
			"id":                  res.ID,
			"content":             res.Memory.Content,
			"score":               res.Score,
			"intersection_count":  res.IntersectionCount,
			"reinforcement_score": res.ReinforcementScore,
			"salience_score":      res.SalienceScore,
			"recency_score":       res.RecencyScore,
			"match_integrity":     res.MatchIntegrity,
		})
	}

	return map[string]any{
		"results":           out,
		"engine_latency_ms": elapsed.Milliseconds(),
	}, nil
}

// Reinforce bumps recency and reinforcement count on a memory, optionally
// attaching new cues, mirroring (*api.Server).handleReinforce.
func (b *SupervisorBackend) Reinforce(_ context.Context, tenantID, id string, extraCues []string) (map[string]any, error) {
	eng, err := b.engine(tenantID)
	if err != nil {
		return nil, err
	}
	m, err := eng.Reinforce(core.MemoryID(id), extraCues)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":                  m.ID,
		"reinforcement_count": m.ReinforcementCount,
	}, nil
}
