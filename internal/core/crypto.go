// Sonora Go - Protocol Client Engine
// Copyright (c) 2026 Sonora Labs
// Licensed under MIT License
// https://github.com/sonora-labs/sonora-go

package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // protocol-mandated primitive, spec.md §4.1
	"math/big"
)

// dhPrimeHex is the 768-bit MODP group from RFC 2409 §6.1 ("Oakley
// Group 1"). spec.md's 96-byte DH public component corresponds exactly
// to a 768-bit modulus, so this engine uses that well-known group
// rather than inventing one; no example repo in the corpus ships a raw
// modular-exponentiation DH group, so this corner is math/big directly
// against a standard, published prime (see DESIGN.md).
const dhPrimeHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A63A3620FFFFFFFFFFFFFFFF"

const dhGeneratorInt = 2

const (
	dhPublicLen = 96
	rsaModulusLen = 128
	rsaBits       = rsaModulusLen * 8
)

var dhPrime *big.Int
var dhGenerator = big.NewInt(dhGeneratorInt)

func init() {
	p, ok := new(big.Int).SetString(dhPrimeHex, 16)
	if !ok {
		panic("core: malformed DH prime constant")
	}
	dhPrime = p
}

// DHKeyPair is a Diffie-Hellman keypair over the fixed group.
type DHKeyPair struct {
	private *big.Int
	Public  [dhPublicLen]byte
}

// GenerateDHKeyPair draws a random private exponent and computes the
// corresponding public value, serialized as 96 big-endian bytes.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	// A private exponent the width of the modulus is generous but
	// matches what reference clients of this protocol family use.
	priv, err := rand.Int(rand.Reader, dhPrime)
	if err != nil {
		return nil, wrapErr(Malformed, "failed to draw DH private key", err)
	}
	if priv.Sign() == 0 {
		priv = big.NewInt(1)
	}

	pub := new(big.Int).Exp(dhGenerator, priv, dhPrime)

	kp := &DHKeyPair{private: priv}
	pub.FillBytes(kp.Public[:])
	return kp, nil
}

// Agree computes the shared secret with a peer's serialized public
// value, returned as the fixed 96-byte big-endian field spec.md calls
// `shared`.
func (kp *DHKeyPair) Agree(peerPublic []byte) ([dhPublicLen]byte, error) {
	var out [dhPublicLen]byte
	if len(peerPublic) != dhPublicLen {
		return out, newErr(Malformed, "peer DH public key has wrong length")
	}
	peer := new(big.Int).SetBytes(peerPublic)
	shared := new(big.Int).Exp(peer, kp.private, dhPrime)
	shared.FillBytes(out[:])
	return out, nil
}

// RSAKeyPair is the client's RSA keypair; only its serialized modulus
// ever crosses the wire (spec.md §3's `rsa_client_keypair`).
type RSAKeyPair struct {
	private *rsa.PrivateKey
	Public  [rsaModulusLen]byte
}

// GenerateRSAKeyPair creates a fresh RSA keypair sized so its modulus
// serializes to exactly 128 bytes, per spec.md §3.
func GenerateRSAKeyPair() (*RSAKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, wrapErr(Malformed, "failed to generate RSA keypair", err)
	}

	kp := &RSAKeyPair{private: key}
	key.PublicKey.N.FillBytes(kp.Public[:])
	return kp, nil
}

// HMACSHA1 computes hmac_sha1(key, msg), the primitive spec.md §4.1
// names explicitly.
func HMACSHA1(key, msg []byte) [20]byte {
	h := hmac.New(sha1.New, key)
	h.Write(msg)
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SHA1 computes sha1(msg).
func SHA1(msg []byte) [20]byte {
	var out [20]byte
	sum := sha1.Sum(msg)
	copy(out[:], sum[:])
	return out
}

// deriveKeys runs the HMAC-SHA1 counter-mode KDF over the handshake
// transcript and DH shared secret (spec.md §4.4 step H3), producing
// the 100-byte key pool the caller slices into hmacKey/sendKey/recvKey.
//
// The exact counter discipline is spec.md's stated Open Question — it
// describes this abstractly as "HMAC-SHA1 counter KDF" — so this
// engine uses the conventional construction: five successive
// hmac_sha1(shared, transcript || counter) blocks for counter in
// 1..5, concatenated in order.
func deriveKeys(shared [96]byte, transcript []byte) [100]byte {
	var pool [100]byte
	for counter := byte(1); counter <= 5; counter++ {
		block := HMACSHA1(shared[:], append(append([]byte{}, transcript...), counter))
		copy(pool[(int(counter)-1)*20:], block[:])
	}
	return pool
}

// puzzleAccept reports whether solution satisfies the server's
// proof-of-work predicate: the first four bytes of
// sha1(serverRandom || solution), read as a big-endian word and XORed
// with magic, must have their low `denominator` bits (at most 32) zero.
// This is the conventional "leading/low zero bits under a mask"
// construction a denominator-style difficulty parameter implies;
// folding magic in via XOR before the mask check lets the server vary
// the target without changing the bit width.
func puzzleAccept(serverRandom [16]byte, solution [8]byte, denominator byte, magic uint32) bool {
	if denominator == 0 {
		return true
	}
	if denominator > 32 {
		denominator = 32
	}

	digest := SHA1(append(append([]byte{}, serverRandom[:]...), solution[:]...))
	value := uint32(digest[0])<<24 | uint32(digest[1])<<16 | uint32(digest[2])<<8 | uint32(digest[3])
	value ^= magic

	mask := uint32(1)<<uint(denominator) - 1
	return value&mask == 0
}

// solvePuzzle brute-forces an 8-byte solution satisfying puzzleAccept.
// The search space is bounded by denominator; expected work is on the
// order of 2^denominator hash evaluations, per spec.md §4.4.
func solvePuzzle(serverRandom [16]byte, denominator byte, magic uint32) [8]byte {
	solution, _ := solvePuzzleCounted(serverRandom, denominator, magic)
	return solution
}

// solvePuzzleCounted is solvePuzzle plus the iteration count, for
// metrics (internal/core/metrics.go's PuzzleSolved).
func solvePuzzleCounted(serverRandom [16]byte, denominator byte, magic uint32) ([8]byte, uint64) {
	var solution [8]byte
	var counter uint64
	for {
		solution[0] = byte(counter)
		solution[1] = byte(counter >> 8)
		solution[2] = byte(counter >> 16)
		solution[3] = byte(counter >> 24)
		solution[4] = byte(counter >> 32)
		solution[5] = byte(counter >> 40)
		solution[6] = byte(counter >> 48)
		solution[7] = byte(counter >> 56)

		if puzzleAccept(serverRandom, solution, denominator, magic) {
			return solution, counter + 1
		}
		counter++
	}
}
