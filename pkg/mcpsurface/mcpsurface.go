// Package mcpsurface exposes CueMap's write/recall/reinforce operations as
// MCP tools, a second external wire surface alongside pkg/api's HTTP/JSON
// contract. A Backend-interface indirection keeps pkg/tenant and
// pkg/engine types out of the tool schema; an optional API-key and
// token-bucket rate-limit middleware stack sits in front of the handler.
package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	toolAddMemory = "cuemap_add_memory"
	toolRecall    = "cuemap_recall"
	toolReinforce = "cuemap_reinforce"
)

// Config controls MCP route behavior.
type Config struct {
	APIKey         string
	Stateless      bool
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedTools   []string
}

// Backend is the minimal capability contract exposed to MCP tools,
// implemented by a thin adapter over pkg/tenant.Supervisor.
type Backend interface {
	AddMemory(ctx context.Context, tenant, content string, cues []string) (map[string]any, error)
	Recall(ctx context.Context, tenant string, cues []string, queryText string, limit int) (map[string]any, error)
	Reinforce(ctx context.Context, tenant, id string, extraCues []string) (map[string]any, error)
}

// NewHandler builds an MCP streamable HTTP handler with optional API-key
// auth and endpoint-local rate limiting.
func NewHandler(cfg Config, backend Backend) (http.Handler, error) {
	if backend == nil {
		return nil, fmt.Errorf("mcp backend is required")
	}

	s := mcpserver.NewMCPServer(
		"cuemap-mcp",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	registerTools(s, backend, cfg.AllowedTools)

	streamable := mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(cfg.Stateless))
	var h http.Handler = http.HandlerFunc(streamable.ServeHTTP)

	if strings.TrimSpace(cfg.APIKey) != "" {
		h = apiKeyMiddleware(strings.TrimSpace(cfg.APIKey), h)
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		h = rateLimitMiddleware(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), h)
	}

	return h, nil
}

func registerTools(s *mcpserver.MCPServer, backend Backend, allowed []string) {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name != "" {
			allowedSet[name] = struct{}{}
		}
	}
	isAllowed := func(name string) bool {
		if len(allowedSet) == 0 {
			return true
		}
		_, ok := allowedSet[name]
		return ok
	}

	if isAllowed(toolAddMemory) {
		s.AddTool(mcpproto.NewTool(toolAddMemory,
			mcpproto.WithDescription("Store a new memory in CueMap, keyed by cues."),
			mcpproto.WithString("tenant", mcpproto.Required(), mcpproto.Description("Tenant id (X-Project-ID equivalent).")),
			mcpproto.WithString("content", mcpproto.Required(), mcpproto.Description("Memory content to persist.")),
			mcpproto.WithString("cues", mcpproto.Description("Optional comma-separated cue list; derived from content via tokenization when omitted.")),
		), func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
			args := req.GetArguments()
			tenant := getString(args, "tenant", "")
			content := getString(args, "content", "")
			if tenant == "" {
				return errResult("tenant is required"), nil
			}
			if strings.TrimSpace(content) == "" {
				return errResult("content is required"), nil
			}
			cues := splitCSV(getString(args, "cues", ""))
			result, err := backend.AddMemory(ctx, tenant, content, cues)
			if err != nil {
				return errResult(err.Error()), nil
			}
			return structuredResult("memory written", result)
		})
	}

	if isAllowed(toolRecall) {
		s.AddTool(mcpproto.NewTool(toolRecall,
			mcpproto.WithDescription("Recall memories from CueMap by cues or free text."),
			mcpproto.WithString("tenant", mcpproto.Required(), mcpproto.Description("Tenant id.")),
			mcpproto.WithString("cues", mcpproto.Description("Optional comma-separated cue list.")),
			mcpproto.WithString("query_text", mcpproto.Description("Optional free text resolved via the lexicon when cues is omitted.")),
			mcpproto.WithNumber("limit", mcpproto.Description("Max results (optional, default 10).")),
		), func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
			args := req.GetArguments()
			tenant := getString(args, "tenant", "")
			if tenant == "" {
				return errResult("tenant is required"), nil
			}
			cues := splitCSV(getString(args, "cues", ""))
			queryText := getString(args, "query_text", "")
			limit := getInt(args, "limit", 10)
			result, err := backend.Recall(ctx, tenant, cues, queryText, limit)
			if err != nil {
				return errResult(err.Error()), nil
			}
			return structuredResult("recall completed", result)
		})
	}

	if isAllowed(toolReinforce) {
		s.AddTool(mcpproto.NewTool(toolReinforce,
			mcpproto.WithDescription("Reinforce a memory, boosting its recency and optionally attaching new cues."),
			mcpproto.WithString("tenant", mcpproto.Required(), mcpproto.Description("Tenant id.")),
			mcpproto.WithString("id", mcpproto.Required(), mcpproto.Description("Memory id.")),
			mcpproto.WithString("extra_cues", mcpproto.Description("Optional comma-separated cues to add.")),
		), func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
			args := req.GetArguments()
			tenant := getString(args, "tenant", "")
			id := getString(args, "id", "")
			if tenant == "" || id == "" {
				return errResult("tenant and id are required"), nil
			}
			extraCues := splitCSV(getString(args, "extra_cues", ""))
			result, err := backend.Reinforce(ctx, tenant, id, extraCues)
			if err != nil {
				return errResult(err.Error()), nil
			}
			return structuredResult("memory reinforced", result)
		})
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func errResult(msg string) *mcpproto.CallToolResult {
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{
			mcpproto.TextContent{Type: "text", Text: "Error: " + msg},
		},
		IsError: true,
	}
}

func structuredResult(summary string, data any) (*mcpproto.CallToolResult, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return errResult(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{
			mcpproto.TextContent{Type: "text", Text: summary},
			mcpproto.TextContent{Type: "text", Text: string(blob)},
		},
	}, nil
}

func getString(args map[string]any, key string, def string) string {
	if args == nil {
		return def
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func getInt(args map[string]any, key string, def int) int {
	if args == nil {
		return def
	}
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return int(v)
}

func apiKeyMiddleware(expected string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		provided := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if provided == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				provided = strings.TrimSpace(auth[7:])
			}
		}

		if provided == "" || provided != expected {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type rateLimitEntry struct {
	tokens float64
	last   time.Time
}

type rateLimiter struct {
	rps   float64
	burst float64

	mu      sync.Mutex
	clients map[string]rateLimitEntry
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{rps: rps, burst: float64(burst), clients: make(map[string]rateLimitEntry)}
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[key]
	if !ok {
		rl.clients[key] = rateLimitEntry{tokens: rl.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(entry.last).Seconds()
	entry.tokens = math.Min(rl.burst, entry.tokens+elapsed*rl.rps)
	entry.last = now
	if entry.tokens < 1 {
		rl.clients[key] = entry
		return false
	}
	entry.tokens -= 1
	rl.clients[key] = entry
	return true
}

func rateLimitMiddleware(rl *rateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientAddr(r)
		if !rl.allow(key) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if strings.TrimSpace(r.RemoteAddr) != "" {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return "unknown"
}
