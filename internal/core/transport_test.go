package core

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairedKeyedSessions(t *testing.T) (*Session, *Session) {
	t.Helper()

	clientSess, err := NewSession("tester", ClientConfig{})
	require.NoError(t, err)
	serverSess, err := NewSession("tester", ClientConfig{})
	require.NoError(t, err)

	var hmacKey, sendKey, recvKey [32]byte
	for i := range sendKey {
		sendKey[i] = byte(i)
		recvKey[i] = byte(31 - i)
	}

	// The client's send key is the server's recv key and vice versa,
	// mirroring the two keys spec.md §4.4 step H3 splits off the pool.
	clientSess.setKeys(hmacKey, sendKey, recvKey, [20]byte{})
	serverSess.setKeys(hmacKey, recvKey, sendKey, [20]byte{})

	return clientSess, serverSess
}

func TestTransport_SendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientSess, serverSess := pairedKeyedSessions(t)

	clientTransport := NewTransport(clientConn, clientSess, nil, nil)
	serverTransport := NewTransport(serverConn, serverSess, nil, nil)

	var mu sync.Mutex
	var gotCommand byte
	var gotPayload []byte
	received := make(chan struct{})
	serverTransport.AddListener(CommandListenerFunc(func(command byte, payload []byte) {
		mu.Lock()
		gotCommand = command
		gotPayload = append([]byte{}, payload...)
		mu.Unlock()
		close(received)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverTransport.ReceiveLoop(ctx)

	require.NoError(t, clientTransport.Send(CmdPong, []byte("payload-data")))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, CmdPong, gotCommand)
	assert.Equal(t, []byte("payload-data"), gotPayload)
}

func TestTransport_TamperedFrameFailsMAC(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientSess, serverSess := pairedKeyedSessions(t)
	clientTransport := NewTransport(clientConn, clientSess, nil, nil)
	serverTransport := NewTransport(serverConn, serverSess, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := serverTransport.receiveOne()
		errCh <- err
	}()

	// Write directly rather than via Send so the frame can be corrupted
	// after encryption but before it reaches the wire.
	clientTransport.sendMu.Lock()
	iv := clientSess.nextSendIV()
	var nonce [4]byte
	nonce[3] = byte(iv)
	clientSess.shannonSend.Nonce(nonce)

	frame := NewWriter(0)
	frame.PutU8(CmdPong)
	frame.PutU16(2)
	frame.PutBytes([]byte{0xAA, 0xBB})
	buf := frame.Bytes()
	clientSess.shannonSend.Encrypt(buf)
	var mac [macLen]byte
	clientSess.shannonSend.Finish(mac[:])
	out := append(buf, mac[:]...)
	out[3] ^= 0xFF // corrupt a payload ciphertext byte, leaving the header parseable
	clientTransport.sendMu.Unlock()

	_, err := clientConn.Write(out)
	require.NoError(t, err)

	err = <-errCh
	require.Error(t, err)
	assert.True(t, IsKind(err, AuthFailed))
}
