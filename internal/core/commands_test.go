package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearch_ValidatesOffsetAndLimit(t *testing.T) {
	_, err := BuildSearch(1, -1, 10, "query")
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidArgument))

	_, err = BuildSearch(1, 0, 0, "query")
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidArgument))

	_, err = BuildSearch(1, 0, -2, "query")
	require.Error(t, err)

	payload, err := BuildSearch(1, 0, -1, "query")
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	payload, err = BuildSearch(1, 5, 25, "abc")
	require.NoError(t, err)
	id, err := ChannelIDOf(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)
}

func TestBuildGetSubstream_ValidatesAlignment(t *testing.T) {
	var fileID [20]byte

	_, err := BuildGetSubstream(1, fileID, 1, 4096)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidArgument))

	_, err = BuildGetSubstream(1, fileID, 4096, 1)
	require.Error(t, err)

	payload, err := BuildGetSubstream(1, fileID, 4096, 8192)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
}

func TestBuildBrowse_TypeArityRules(t *testing.T) {
	var a, b [16]byte

	_, err := BuildBrowse(1, BrowseArtist, [][16]byte{a, b})
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidArgument))

	_, err = BuildBrowse(1, BrowseArtist, nil)
	require.Error(t, err)

	payload, err := BuildBrowse(1, BrowseArtist, [][16]byte{a})
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	payload, err = BuildBrowse(1, BrowseTrack, [][16]byte{a, b})
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	_, err = BuildBrowse(1, BrowseTrack, nil)
	require.Error(t, err)

	_, err = BuildBrowse(1, BrowseType(9), [][16]byte{a})
	require.Error(t, err)
}

func TestChannelIDOf_ExtractsLeadingU16(t *testing.T) {
	var imageID [20]byte
	payload := BuildImage(0x1234, imageID)
	id, err := ChannelIDOf(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), id)
}

func TestChannelIDOf_TruncatedPayloadIsIOShort(t *testing.T) {
	_, err := ChannelIDOf([]byte{0x01})
	require.Error(t, err)
	assert.True(t, IsKind(err, IOShort))
}
