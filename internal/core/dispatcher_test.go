package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDispatcher_RoutesDataToRegisteredChannel(t *testing.T) {
	registry := NewRegistry(nil)
	var gotID uint16
	var gotData []byte
	registry.Register(&Channel{
		ID:   7,
		Kind: ChannelSearch,
		Listener: ChannelListenerFuncs{
			Data: func(id uint16, data []byte) {
				gotID = id
				gotData = data
			},
		},
	})

	d := NewChannelDispatcher(registry, nil)

	w := NewWriter(0)
	w.PutU16(7)
	w.PutBytes([]byte("result bytes"))
	d.OnPacket(CmdSearch, w.Bytes())

	assert.Equal(t, uint16(7), gotID)
	assert.Equal(t, []byte("result bytes"), gotData)
}

func TestChannelDispatcher_EmptyFragmentEndsAndRetiresChannel(t *testing.T) {
	registry := NewRegistry(nil)
	ended := false
	registry.Register(&Channel{
		ID:   3,
		Kind: ChannelImage,
		Listener: ChannelListenerFuncs{
			End: func(id uint16) { ended = true },
		},
	})

	d := NewChannelDispatcher(registry, nil)

	w := NewWriter(0)
	w.PutU16(3)
	d.OnPacket(CmdImage, w.Bytes())

	assert.True(t, ended)
	_, ok := registry.Lookup(3)
	assert.False(t, ok)
}

func TestChannelDispatcher_IgnoresNonChannelCommands(t *testing.T) {
	registry := NewRegistry(nil)
	d := NewChannelDispatcher(registry, nil)

	assert.NotPanics(t, func() {
		d.OnPacket(CmdPong, []byte{0, 0, 0, 0})
	})
}

func TestChannelDispatcher_UnknownChannelIsDropped(t *testing.T) {
	registry := NewRegistry(nil)
	d := NewChannelDispatcher(registry, nil)

	w := NewWriter(0)
	w.PutU16(99)
	w.PutBytes([]byte("orphaned"))

	require.NotPanics(t, func() {
		d.OnPacket(CmdSearch, w.Bytes())
	})
}
