// Sonora Go - Protocol Client Engine
// Copyright (c) 2026 Sonora Labs
// Licensed under MIT License
// https://github.com/sonora-labs/sonora-go

package core

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"go.uber.org/zap"
)

// macLen is the width of the trailer the cipher's Finish call produces
// (spec.md §6's framed-packet layout).
const macLen = 4

// CommandListener receives every decrypted (command, payload) pair in
// wire order, per spec.md §4.5 step 7. Implementations must not block:
// they should hand off to their own queue (spec.md §5).
type CommandListener interface {
	OnPacket(command byte, payload []byte)
}

// CommandListenerFunc adapts a plain function to CommandListener.
type CommandListenerFunc func(command byte, payload []byte)

func (f CommandListenerFunc) OnPacket(command byte, payload []byte) {
	f(command, payload)
}

// Transport is the framed, cipher-protected session layer that sits on
// top of a handshake-complete Session. Its send path is safe for
// concurrent use by many goroutines; its receive loop must be driven by
// exactly one goroutine, per spec.md §5's concurrency model.
type Transport struct {
	conn    io.ReadWriteCloser
	session *Session
	logger  *zap.SugaredLogger
	metrics Metrics

	sendMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []CommandListener
}

// NewTransport wraps conn with the cipher framing described in
// spec.md §4.5, using the keys Handshake derived into session.
func NewTransport(conn io.ReadWriteCloser, session *Session, logger *zap.SugaredLogger, metrics Metrics) *Transport {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Transport{
		conn:    conn,
		session: session,
		logger:  logger,
		metrics: metrics,
	}
}

// AddListener registers a command listener. Listeners are invoked in
// registration order (spec.md §4.5 step 7).
func (t *Transport) AddListener(l CommandListener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Send builds, encrypts, MACs and writes one packet. The whole
// sequence — nonce set, encrypt, MAC, write, IV advance — is one
// atomic critical section (spec.md §5), so packets reach the wire in
// the order their senders acquired the lock and no IV is ever skipped
// or reused.
func (t *Transport) Send(command byte, payload []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	iv := t.session.nextSendIV()
	var nonce [4]byte
	binary.BigEndian.PutUint32(nonce[:], iv)
	t.session.shannonSend.Nonce(nonce)

	frame := NewWriter(3 + len(payload) + macLen)
	frame.PutU8(command)
	frame.PutU16(uint16(len(payload)))
	frame.PutBytes(payload)

	buf := frame.Bytes()
	body := buf[:3+len(payload)]
	t.session.shannonSend.Encrypt(body)

	var mac [macLen]byte
	t.session.shannonSend.Finish(mac[:])

	out := append(body, mac[:]...)
	if _, err := t.conn.Write(out); err != nil {
		return wrapErr(ConnectionLost, "failed to write packet", err)
	}

	t.metrics.PacketSent(len(out))
	return nil
}

// ReceiveLoop runs the single-consumer read path until ctx is done or
// the connection fails. Each iteration reads exactly one frame,
// decrypts it, and fans its (command, payload) out to every registered
// listener in insertion order.
func (t *Transport) ReceiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		command, payload, err := t.receiveOne()
		if err != nil {
			return err
		}

		t.listenersMu.RLock()
		listeners := make([]CommandListener, len(t.listeners))
		copy(listeners, t.listeners)
		t.listenersMu.RUnlock()

		for _, l := range listeners {
			l.OnPacket(command, payload)
		}
	}
}

// receiveOne implements spec.md §4.5's receive steps 1-6.
func (t *Transport) receiveOne() (byte, []byte, error) {
	header, err := readExact(t.conn, 3)
	if err != nil {
		return 0, nil, err
	}

	iv := t.session.nextRecvIV()
	var nonce [4]byte
	binary.BigEndian.PutUint32(nonce[:], iv)
	t.session.shannonRecv.Nonce(nonce)

	t.session.shannonRecv.Decrypt(header)
	command := header[0]
	payloadLen := binary.BigEndian.Uint16(header[1:3])

	body, err := readExact(t.conn, int(payloadLen)+macLen)
	if err != nil {
		return 0, nil, err
	}

	payload := body[:payloadLen]
	t.session.shannonRecv.Decrypt(payload)

	var expectedMAC [macLen]byte
	t.session.shannonRecv.Finish(expectedMAC[:])
	receivedMAC := body[payloadLen:]
	if !macEqual(expectedMAC[:], receivedMAC) {
		return 0, nil, newErr(AuthFailed, "MAC mismatch on received packet")
	}

	t.metrics.PacketReceived(3 + len(body))
	return command, payload, nil
}

func macEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// Close releases the underlying connection and zeroes the session's
// key material.
func (t *Transport) Close() error {
	t.session.Close()
	return t.conn.Close()
}
