package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := &EngineSnapshot{
		Memories: []*core.Memory{
			core.NewMemory("italian food review", []string{"food", "italian"}, 100),
		},
		CueOrder: map[string][]core.MemoryID{
			"food": {"m1", "m2"},
		},
		Cooccur: map[string]map[string]uint32{
			"food": {"italian": 3},
		},
	}

	codec := NewCodec(false)
	data, err := codec.Encode(snap)
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap.CueOrder, decoded.CueOrder)
	assert.Equal(t, snap.Cooccur, decoded.Cooccur)
	require.Len(t, decoded.Memories, 1)
	assert.Equal(t, snap.Memories[0].Content, decoded.Memories[0].Content)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	codec := NewCodec(false)
	_, err := codec.Decode([]byte("not a real snapshot file at all"))
	assert.Error(t, err)
}

func TestEncodeDecodeWithCompression(t *testing.T) {
	snap := &EngineSnapshot{
		Memories: []*core.Memory{
			core.NewMemory("a memory with quite a lot of repeated repeated repeated content text", []string{"x"}, 1),
		},
	}
	codec := NewCodec(true)
	data, err := codec.Encode(snap)
	require.NoError(t, err)
	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded.Memories, 1)
	assert.Equal(t, snap.Memories[0].Content, decoded.Memories[0].Content)
}
