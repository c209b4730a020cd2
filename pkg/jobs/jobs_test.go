package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitNonBufferableProcessesImmediately(t *testing.T) {
	var processed atomic.Int32
	p := New(10, 10*time.Millisecond, func(j Job) {
		if j.Kind == ReinforceMemories {
			processed.Add(1)
		}
	})
	defer p.Shutdown()

	p.Submit("s1", Job{Kind: ReinforceMemories})
	p.AwaitQuiescence(context.Background())
	require.Equal(t, int32(1), processed.Load())
}

func TestSubmitBufferableFlushesOnIdle(t *testing.T) {
	var processed atomic.Int32
	p := New(10, 10*time.Millisecond, func(j Job) {
		processed.Add(1)
	})
	defer p.Shutdown()

	p.Submit("s1", Job{Kind: ProposeCues})
	p.Submit("s1", Job{Kind: TrainLexicon})
	// Not yet flushed.
	assert.Equal(t, int32(0), processed.Load())

	time.Sleep(50 * time.Millisecond)
	p.AwaitQuiescence(context.Background())
	assert.Equal(t, int32(2), processed.Load())
}

func TestFlushForcesSessionClosed(t *testing.T) {
	var processed atomic.Int32
	p := New(10, time.Hour, func(j Job) {
		processed.Add(1)
	})
	defer p.Shutdown()

	p.Submit("s1", Job{Kind: UpdateGraph})
	p.Flush()
	p.AwaitQuiescence(context.Background())
	assert.Equal(t, int32(1), processed.Load())
}

func TestTryEnqueueFailsWhenFull(t *testing.T) {
	block := make(chan struct{})
	p := New(1, time.Hour, func(j Job) {
		<-block
	})
	defer func() {
		close(block)
		p.Shutdown()
	}()

	require.True(t, p.TryEnqueue(Job{Kind: ReinforceMemories}))
	time.Sleep(10 * time.Millisecond) // let the worker pick it up and block
	require.True(t, p.TryEnqueue(Job{Kind: ReinforceMemories}))
	assert.False(t, p.TryEnqueue(Job{Kind: ReinforceMemories}))
}

func TestHandlerPanicDoesNotCrashWorker(t *testing.T) {
	var processed atomic.Int32
	p := New(10, 10*time.Millisecond, func(j Job) {
		if j.Kind == ConsolidateMemories {
			panic("boom")
		}
		processed.Add(1)
	})
	defer p.Shutdown()

	p.Submit("s1", Job{Kind: ConsolidateMemories})
	p.Submit("s1", Job{Kind: ReinforceMemories})
	p.AwaitQuiescence(context.Background())
	assert.Equal(t, int32(1), processed.Load())
}

func TestStatsCountsCompletions(t *testing.T) {
	p := New(10, 10*time.Millisecond, func(j Job) {})
	defer p.Shutdown()

	p.Submit("s1", Job{Kind: ReinforceMemories})
	p.AwaitQuiescence(context.Background())
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats["reinforce_completed"])
	assert.Equal(t, uint64(1), stats["writes_total"])
}
