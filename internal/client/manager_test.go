package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateLinkRejectsDuplicateID(t *testing.T) {
	m := NewManager(nil, nil, nil)

	_, err := m.CreateLink("a", LinkConfig{Username: "u", ServerAddress: "127.0.0.1:0"})
	require.NoError(t, err)

	_, err = m.CreateLink("a", LinkConfig{Username: "u", ServerAddress: "127.0.0.1:0"})
	assert.ErrorIs(t, err, ErrLinkExists)
}

func TestManager_DeleteLinkNotFound(t *testing.T) {
	m := NewManager(nil, nil, nil)
	err := m.DeleteLink("missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestManager_StatsCountsByStatus(t *testing.T) {
	m := NewManager(nil, nil, nil)
	link := NewLink("solo", LinkConfig{Username: "u"})
	m.links["solo"] = link

	stats := m.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Active)

	link.setStatus(StatusReady)
	stats = m.Stats()
	assert.Equal(t, 1, stats.Ready)
	assert.Equal(t, 1, stats.Active)
}
