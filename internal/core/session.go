// Sonora Go - Protocol Client Engine
// Copyright (c) 2026 Sonora Labs
// Licensed under MIT License
// https://github.com/sonora-labs/sonora-go

package core

import (
	"crypto/rand"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ClientConfig identifies the client implementation to the server and
// carries the server address, cache hash and logger, mirroring the
// teacher's ConnectionConfig. It has no timing settings.
type ClientConfig struct {
	ClientID       uint32
	ClientRevision uint32
	ServerAddress  string
	CacheHash      [20]byte
	Logger         *zap.SugaredLogger
}

// Session is the root entity of one connection lifetime (spec.md §3).
// Its fields are partitioned, per spec.md's Design Notes, into a
// single-owner handshake phase that moves into the mutex-guarded send
// side and the reader-exclusive receive side once the handshake
// completes.
type Session struct {
	logger *zap.SugaredLogger

	Username       []byte
	ClientID       uint32
	ClientRevision uint32
	ClientRandom   [16]byte
	ServerRandom   [16]byte

	dhKeyPair     *DHKeyPair
	DHServerPublic [96]byte

	rsaKeyPair *RSAKeyPair

	ServerBlob [256]byte
	Salt       [10]byte

	PuzzleDenominator byte
	PuzzleMagic       uint32
	PuzzleSolution    [8]byte

	InitialClientPacket []byte
	InitialServerPacket []byte

	AuthHMAC [20]byte

	keysMu   sync.Mutex
	keysSet  bool
	hmacKey  [20]byte
	sendKey  [32]byte
	recvKey  [32]byte

	shannonSend *Shannon
	shannonRecv *Shannon

	sendIV uint32
	recvIV uint32

	CacheHashValue [20]byte
}

// NewSession constructs a session with fresh random and key material.
// Per spec.md §3, client_random is generated here; DH and RSA keypairs
// are generated here as well since they must exist before the client
// hello is built.
func NewSession(username string, cfg ClientConfig) (*Session, error) {
	s := &Session{
		logger:         cfg.Logger,
		Username:       []byte(username),
		ClientID:       cfg.ClientID,
		ClientRevision: cfg.ClientRevision,
		CacheHashValue: cfg.CacheHash,
	}

	if _, err := rand.Read(s.ClientRandom[:]); err != nil {
		return nil, wrapErr(Malformed, "failed to generate client_random", err)
	}

	dh, err := GenerateDHKeyPair()
	if err != nil {
		return nil, err
	}
	s.dhKeyPair = dh

	rsaKP, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, err
	}
	s.rsaKeyPair = rsaKP

	return s, nil
}

// DHPublic returns the client's serialized 96-byte DH public value.
func (s *Session) DHPublic() [96]byte {
	return s.dhKeyPair.Public
}

// RSAPublic returns the client's serialized 128-byte RSA modulus.
func (s *Session) RSAPublic() [128]byte {
	return s.rsaKeyPair.Public
}

// setKeys installs the derived session keys exactly once. A second
// call is a programming error — spec.md §4.2 requires keys be set
// exactly once per session.
func (s *Session) setKeys(hmacKey, sendKey, recvKey [32]byte, authHMAC [20]byte) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.keysSet {
		panic("core: session keys set twice")
	}

	copy(s.hmacKey[:], hmacKey[:20])
	s.sendKey = sendKey
	s.recvKey = recvKey
	s.AuthHMAC = authHMAC
	s.keysSet = true

	s.shannonSend = &Shannon{}
	s.shannonSend.InitKey(s.sendKey[:])
	s.shannonRecv = &Shannon{}
	s.shannonRecv.InitKey(s.recvKey[:])
}

// nextSendIV returns the IV to use for the next outbound packet and
// advances key_send_iv by exactly one, per spec.md §3's invariant.
func (s *Session) nextSendIV() uint32 {
	return atomic.AddUint32(&s.sendIV, 1) - 1
}

// nextRecvIV returns the IV to use for the next inbound packet and
// advances key_recv_iv by exactly one.
func (s *Session) nextRecvIV() uint32 {
	return atomic.AddUint32(&s.recvIV, 1) - 1
}

// SendIV reports the current value of key_send_iv (for tests and
// metrics; spec.md §8 invariant 2).
func (s *Session) SendIV() uint32 {
	return atomic.LoadUint32(&s.sendIV)
}

// RecvIV reports the current value of key_recv_iv.
func (s *Session) RecvIV() uint32 {
	return atomic.LoadUint32(&s.recvIV)
}

// Close zeroes key material and cipher state on teardown, per spec.md
// §5's resource model.
func (s *Session) Close() {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	for i := range s.hmacKey {
		s.hmacKey[i] = 0
	}
	for i := range s.sendKey {
		s.sendKey[i] = 0
	}
	for i := range s.recvKey {
		s.recvKey[i] = 0
	}
	s.shannonSend = nil
	s.shannonRecv = nil
}
