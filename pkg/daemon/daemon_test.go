package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/config"
	"github.com/cuemap-dev/cuemap/pkg/tenant"
)

func TestRunConsolidateMergesOverlappingMemories(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.QueueCapacity = 100
	cfg.Jobs.IngestSessionIdle = 5 * time.Millisecond
	sup := tenant.New(cfg, nil)
	defer sup.Shutdown()

	eng, err := sup.GetOrCreate("acme")
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = eng.Write("first note about the trip", []string{"trip", "paris", "hotel"}, now, "s1")
	require.NoError(t, err)
	_, err = eng.Write("second note about the trip", []string{"trip", "paris", "hotel"}, now, "s1")
	require.NoError(t, err)
	eng.AwaitQuiescence()

	before := eng.Memories().Len()

	m := NewManager(sup, time.Hour, 0.5, 0, 0, 0)
	m.runConsolidate()

	after := eng.Memories().Len()
	assert.GreaterOrEqual(t, after, before)
}

func TestRunProposeAliasesInstallsHighJaccardPairs(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.QueueCapacity = 100
	cfg.Jobs.IngestSessionIdle = 5 * time.Millisecond
	sup := tenant.New(cfg, nil)
	defer sup.Shutdown()

	eng, err := sup.GetOrCreate("acme")
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = eng.Write("first", []string{"pay", "payment", "invoice"}, now, "s1")
	require.NoError(t, err)
	_, err = eng.Write("second", []string{"pay", "payment", "receipt"}, now, "s1")
	require.NoError(t, err)
	eng.AwaitQuiescence()

	m := NewManager(sup, 0, 0, time.Hour, 0.9, 0)
	m.runProposeAliases()

	payPayment := false
	for _, e := range eng.Aliases().Outgoing("pay") {
		if e.To == "payment" {
			payPayment = true
		}
	}
	paymentPay := false
	for _, e := range eng.Aliases().Outgoing("payment") {
		if e.To == "pay" {
			paymentPay = true
		}
	}
	assert.True(t, payPayment || paymentPay, "expected a pay<->payment alias from a Jaccard-1.0 pair")
}

func TestPersistDaemonCallsPersistAllOnTick(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.QueueCapacity = 100
	cfg.Jobs.IngestSessionIdle = 5 * time.Millisecond
	sup := tenant.New(cfg, nil)
	defer sup.Shutdown()

	m := NewManager(sup, 0, 0, 0, 0, 20*time.Millisecond)
	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()
}

func TestStartIsNoOpWhenIntervalsAreZero(t *testing.T) {
	cfg := config.Default()
	sup := tenant.New(cfg, nil)
	defer sup.Shutdown()

	m := NewManager(sup, 0, 0, 0, 0, 0)
	m.Start()
	m.Stop()
}
