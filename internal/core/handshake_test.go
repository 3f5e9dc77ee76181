package core

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerHello builds a wire-correct H2 packet with denominator 0
// (the puzzle is solved on the first guess) so tests can drive a full
// handshake without brute-forcing real proof-of-work.
func fakeServerHello(t *testing.T, denominator byte, statusByte0 byte, subCode byte) []byte {
	t.Helper()
	w := NewWriter(0)

	if statusByte0 != 0 {
		w.PutU8(statusByte0)
		w.PutU8(subCode)
		return w.Bytes()
	}

	w.PutU8(0)
	w.PutU8(0xAA) // server_random[1]
	w.PutZeros(14) // server_random[2:16]
	w.PutZeros(96) // dh_server_public
	w.PutZeros(256) // server_blob

	salt := [10]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	w.PutBytes(salt[:])

	w.PutU8(4) // padding_length
	username := []byte("tester")
	w.PutU8(byte(len(username))) // username_length

	w.PutU16(6) // puzzle_challenge_len
	w.PutU16(0) // unknown1
	w.PutU16(0) // unknown2
	w.PutU16(0) // unknown3

	w.PutZeros(4) // padding
	w.PutBytes(username)

	w.PutU8(0x01)        // puzzle marker
	w.PutU8(denominator) // denominator
	w.PutU32(0)          // magic

	return w.Bytes()
}

func TestHandshake_SuccessfulRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		// H1: drain the client hello.
		lenHdr, err := readExact(serverConn, 4)
		if err != nil {
			serverDone <- err
			return
		}
		totalLen := int(lenHdr[2])<<8 | int(lenHdr[3])
		if _, err := readExact(serverConn, totalLen-4); err != nil {
			serverDone <- err
			return
		}

		// H2: send a fabricated, trivially-solvable server hello.
		if _, err := serverConn.Write(fakeServerHello(t, 0, 0, 0)); err != nil {
			serverDone <- err
			return
		}

		// H4: drain the 51-byte client auth packet.
		if _, err := readExact(serverConn, 51); err != nil {
			serverDone <- err
			return
		}

		// H5: success.
		if _, err := serverConn.Write([]byte{0x00, 0x01, 0x00}); err != nil {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	session, err := NewSession("tester", ClientConfig{ClientID: 1, ClientRevision: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Handshake(ctx, clientConn, session, nil)
	require.NoError(t, err)
	require.NoError(t, <-serverDone)

	assert.NotEmpty(t, session.AuthHMAC)
}

func TestHandshake_RejectedAtServerHello(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		lenHdr, err := readExact(serverConn, 4)
		if err != nil {
			serverDone <- err
			return
		}
		totalLen := int(lenHdr[2])<<8 | int(lenHdr[3])
		if _, err := readExact(serverConn, totalLen-4); err != nil {
			serverDone <- err
			return
		}

		if _, err := serverConn.Write(fakeServerHello(t, 0, 0x01, 0x04)); err != nil {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	session, err := NewSession("tester", ClientConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Handshake(ctx, clientConn, session, nil)
	require.Error(t, err)

	rejectErr, ok := err.(*HandshakeRejectedError)
	require.True(t, ok)
	assert.Equal(t, byte(0x04), rejectErr.SubCode)
	assert.Equal(t, RejectAccountDisabled, rejectErr.UserCause)
	require.NoError(t, <-serverDone)
}

func TestHandshake_AuthFailedAtH5(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		lenHdr, err := readExact(serverConn, 4)
		if err != nil {
			serverDone <- err
			return
		}
		totalLen := int(lenHdr[2])<<8 | int(lenHdr[3])
		if _, err := readExact(serverConn, totalLen-4); err != nil {
			serverDone <- err
			return
		}
		if _, err := serverConn.Write(fakeServerHello(t, 0, 0, 0)); err != nil {
			serverDone <- err
			return
		}
		if _, err := readExact(serverConn, 51); err != nil {
			serverDone <- err
			return
		}
		if _, err := serverConn.Write([]byte{0x01, 0x02}); err != nil {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	session, err := NewSession("tester", ClientConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Handshake(ctx, clientConn, session, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, AuthFailed))
	require.NoError(t, <-serverDone)
}
