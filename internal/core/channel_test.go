package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllocateSkipsLiveIDs(t *testing.T) {
	r := NewRegistry(nil)

	id0 := r.Allocate()
	r.Register(&Channel{ID: id0, Kind: ChannelSearch, Listener: ChannelListenerFuncs{}})

	id1 := r.Allocate()
	assert.NotEqual(t, id0, id1)
}

func TestRegistry_RegisterPanicsOnDuplicateLiveID(t *testing.T) {
	r := NewRegistry(nil)
	ch := &Channel{ID: 5, Kind: ChannelImage, Listener: ChannelListenerFuncs{}}
	r.Register(ch)

	assert.Panics(t, func() {
		r.Register(&Channel{ID: 5, Kind: ChannelImage, Listener: ChannelListenerFuncs{}})
	})
}

func TestRegistry_RetireThenReuseID(t *testing.T) {
	r := NewRegistry(nil)
	ch := &Channel{ID: 9, Kind: ChannelBrowse, Listener: ChannelListenerFuncs{}}
	r.Register(ch)
	require.Equal(t, 1, r.Len())

	r.Retire(9)
	assert.Equal(t, 0, r.Len())

	_, ok := r.Lookup(9)
	assert.False(t, ok)

	r.Register(&Channel{ID: 9, Kind: ChannelBrowse, Listener: ChannelListenerFuncs{}})
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RetireUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	assert.NotPanics(t, func() {
		r.Retire(42)
	})
}

func TestRegistry_IDsReflectsLiveSet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Channel{ID: 1, Listener: ChannelListenerFuncs{}})
	r.Register(&Channel{ID: 2, Listener: ChannelListenerFuncs{}})

	ids := r.IDs()
	assert.ElementsMatch(t, []uint16{1, 2}, ids)
}

func TestChannelListenerFuncs_NilFuncsAreSafe(t *testing.T) {
	l := ChannelListenerFuncs{}
	assert.NotPanics(t, func() {
		l.OnData(1, []byte("x"))
		l.OnEnd(1)
	})
}
