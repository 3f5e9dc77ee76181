package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_GeneratesDistinctKeyMaterial(t *testing.T) {
	s1, err := NewSession("alice", ClientConfig{ClientID: 1, ClientRevision: 1})
	require.NoError(t, err)
	s2, err := NewSession("alice", ClientConfig{ClientID: 1, ClientRevision: 1})
	require.NoError(t, err)

	assert.NotEqual(t, s1.ClientRandom, s2.ClientRandom)
	assert.NotEqual(t, s1.DHPublic(), s2.DHPublic())
	assert.NotEqual(t, s1.RSAPublic(), s2.RSAPublic())
}

func TestSession_SetKeysTwicePanics(t *testing.T) {
	s, err := NewSession("bob", ClientConfig{})
	require.NoError(t, err)

	var hmacKey, sendKey, recvKey [32]byte
	var authHMAC [20]byte
	s.setKeys(hmacKey, sendKey, recvKey, authHMAC)

	assert.Panics(t, func() {
		s.setKeys(hmacKey, sendKey, recvKey, authHMAC)
	})
}

func TestSession_IVsAdvanceMonotonically(t *testing.T) {
	s, err := NewSession("carol", ClientConfig{})
	require.NoError(t, err)

	assert.Equal(t, uint32(0), s.nextSendIV())
	assert.Equal(t, uint32(1), s.nextSendIV())
	assert.Equal(t, uint32(2), s.SendIV())

	assert.Equal(t, uint32(0), s.nextRecvIV())
	assert.Equal(t, uint32(1), s.RecvIV())
}

func TestSession_CloseZeroesKeyMaterial(t *testing.T) {
	s, err := NewSession("dave", ClientConfig{})
	require.NoError(t, err)

	var sendKey [32]byte
	for i := range sendKey {
		sendKey[i] = 0xAB
	}
	s.setKeys([32]byte{}, sendKey, [32]byte{}, [20]byte{})

	s.Close()
	assert.True(t, bytes.Equal(s.sendKey[:], make([]byte, 32)))
	assert.Nil(t, s.shannonSend)
	assert.Nil(t, s.shannonRecv)
}
