package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/config"
	"github.com/cuemap-dev/cuemap/pkg/engine"
	"github.com/cuemap-dev/cuemap/pkg/persistence"
	"github.com/cuemap-dev/cuemap/pkg/recall"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Jobs.QueueCapacity = 100
	cfg.Jobs.IngestSessionIdle = 5 * time.Millisecond
	cfg.Tenant.IdleEvictAfter = time.Hour
	return cfg
}

func TestGetOrCreateReturnsSameEngineForSameTenant(t *testing.T) {
	s := New(testConfig(), nil)
	t.Cleanup(func() { s.Shutdown() })

	e1, err := s.GetOrCreate("acme")
	require.NoError(t, err)
	e2, err := s.GetOrCreate("acme")
	require.NoError(t, err)
	assert.Same(t, e1, e2)
}

func TestGetOrCreateIsolatesTenants(t *testing.T) {
	s := New(testConfig(), nil)
	t.Cleanup(func() { s.Shutdown() })

	a, _ := s.GetOrCreate("tenant-a")
	b, _ := s.GetOrCreate("tenant-b")

	a.Write("secret a", []string{"secret"}, 1, "s1")
	a.AwaitQuiescence()
	b.AwaitQuiescence()

	results := b.Recall(engine.RecallRequest{Cues: []string{"secret"}, Options: recall.Options{Limit: 10}}, "s1")
	assert.Empty(t, results)
}

func TestRegistryGateRejectsUnknownTenant(t *testing.T) {
	cfg := testConfig()
	cfg.Tenant.RegistryEnabled = true
	s := New(cfg, nil)
	t.Cleanup(func() { s.Shutdown() })

	_, err := s.GetOrCreate("unregistered")
	assert.Error(t, err)

	s.Register("allowed")
	_, err = s.GetOrCreate("allowed")
	assert.NoError(t, err)
}

func TestEvictPersistsAndReloadsFromStore(t *testing.T) {
	dir := t.TempDir()
	store, err := persistence.NewStore(dir, false)
	require.NoError(t, err)

	cfg := testConfig()
	s := New(cfg, store)
	t.Cleanup(func() { s.Shutdown() })

	eng, _ := s.GetOrCreate("acme")
	res, err := eng.Write("hello world", []string{"greeting"}, 100, "s1")
	require.NoError(t, err)
	eng.AwaitQuiescence()

	require.NoError(t, s.Evict("acme"))
	assert.Empty(t, s.ListTenants())

	reloaded, err := s.GetOrCreate("acme")
	require.NoError(t, err)
	m, err := reloaded.Get(res.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", m.Content)
}

func TestStatsReportsActiveTenants(t *testing.T) {
	s := New(testConfig(), nil)
	t.Cleanup(func() { s.Shutdown() })

	s.GetOrCreate("a")
	s.GetOrCreate("b")
	stats := s.Stats()
	assert.Equal(t, uint64(2), stats["active_tenants"])
	assert.Equal(t, uint64(2), stats["total_created"])
}
