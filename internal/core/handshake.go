// Sonora Go - Protocol Client Engine
// Copyright (c) 2026 Sonora Labs
// Licensed under MIT License
// https://github.com/sonora-labs/sonora-go

package core

import (
	"context"
	"fmt"
	"io"
	"time"
)

func fmtAuthFailed(subCode byte) string {
	return fmt.Sprintf("server rejected authentication (sub-code 0x%02x)", subCode)
}

// protocolVersion is the fixed client hello version constant
// (spec.md §4.4 H1, offset 0). There is no version negotiation in this
// engine (spec.md §1 Non-goals).
const protocolVersion = 3

// readExact loops a read until n bytes are satisfied or the stream
// ends, per spec.md §4.5's short-read rule: EOF (before or mid-frame)
// and any other read error are both reported as connection-lost.
func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := r.Read(buf[read:])
		read += m
		if err != nil {
			if err == io.EOF {
				if read == 0 {
					return nil, newErr(ConnectionLost, "connection closed before any bytes were read")
				}
				return nil, wrapErr(ConnectionLost, "connection closed mid-frame", err)
			}
			return nil, wrapErr(ConnectionLost, "read failed", err)
		}
	}
	return buf, nil
}

// Handshake drives the four-step sequence of spec.md §4.4 end to end
// over conn (a net.Conn or any io.ReadWriter the caller has already
// dialed). It runs entirely in plaintext; the cipher layer does not
// exist until it returns successfully. Any deviation from the exact
// byte layout or step order is fatal and the session must be discarded
// (spec.md §7).
func Handshake(ctx context.Context, conn io.ReadWriter, s *Session, metrics Metrics) error {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		if dc, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dc.SetDeadline(deadline)
		}
	}

	if err := sendClientHello(conn, s); err != nil {
		return err
	}

	if err := receiveServerHello(conn, s); err != nil {
		return err
	}

	if err := deriveSessionKeysAndSolvePuzzle(s, metrics); err != nil {
		return err
	}

	if err := sendClientAuth(conn, s); err != nil {
		return err
	}

	if err := receiveAuthStatus(conn, s); err != nil {
		return err
	}

	metrics.HandshakeCompleted(time.Since(start))
	return nil
}

// sendClientHello builds and sends H1's packet exactly per the layout
// table in spec.md §4.4, saving the verbatim buffer as
// initial_client_packet before it ever reaches the wire.
func sendClientHello(conn io.Writer, s *Session) error {
	w := NewWriter(512)

	w.PutU16(protocolVersion) // offset 0: version
	w.PutU16(0)               // offset 2: length, back-patched below
	w.PutU32(0)               // offset 4: reserved
	w.PutU32(0x00030C00)      // offset 8: reserved
	w.PutU32(s.ClientRevision) // offset 12
	w.PutU32(0)               // offset 16: reserved
	w.PutU32(0x01000000)      // offset 20: reserved
	w.PutU32(s.ClientID)      // offset 24
	w.PutU32(0)               // offset 28: reserved

	clientRandom := s.ClientRandom
	w.PutBytes(clientRandom[:]) // offset 32, 16 bytes

	dhPub := s.DHPublic()
	w.PutBytes(dhPub[:]) // offset 48, 96 bytes

	rsaPub := s.RSAPublic()
	w.PutBytes(rsaPub[:]) // offset 144, 128 bytes

	w.PutU8(0)                    // offset 272: random_length
	w.PutU8(byte(len(s.Username))) // offset 273: username_length
	w.PutU16(0x0100)              // offset 274: reserved
	w.PutBytes(s.Username)        // offset 276, L bytes
	w.PutU8(0x40)                 // offset 276+L: reserved

	w.PatchU16(2, uint16(w.Len()))

	packet := w.Bytes()
	s.InitialClientPacket = append([]byte{}, packet...)

	if _, err := conn.Write(packet); err != nil {
		return wrapErr(ConnectionLost, "failed to write client hello", err)
	}
	return nil
}

// upgradeURLRegionLen is the 282-byte URL region read for sub-status
// 0x01 ("client upgrade required"), per spec.md §4.4 H2 step 1.
const upgradeURLRegionLen = 282

// receiveServerHello reads H2 in the exact field order spec.md §4.4
// specifies, concatenating every read byte into initial_server_packet.
func receiveServerHello(conn io.Reader, s *Session) error {
	var transcript []byte
	read := func(n int) ([]byte, error) {
		b, err := readExact(conn, n)
		if err != nil {
			return nil, err
		}
		transcript = append(transcript, b...)
		return b, nil
	}

	statusHdr, err := read(2)
	if err != nil {
		return err
	}
	if statusHdr[0] != 0 {
		upgradeURL := ""
		if statusHdr[1] == 0x01 {
			urlRegion, err := read(upgradeURLRegionLen)
			if err != nil {
				return err
			}
			tailLen := int(urlRegion[len(urlRegion)-1])
			if tailLen > 0 && tailLen <= len(urlRegion)-1 {
				upgradeURL = string(urlRegion[len(urlRegion)-1-tailLen : len(urlRegion)-1])
			}
		}
		s.InitialServerPacket = transcript
		return newRejectErr(statusHdr[1], upgradeURL)
	}

	serverRandomRest, err := read(14)
	if err != nil {
		return err
	}
	copy(s.ServerRandom[:2], statusHdr)
	copy(s.ServerRandom[2:], serverRandomRest)

	dhServerPublic, err := read(96)
	if err != nil {
		return err
	}
	copy(s.DHServerPublic[:], dhServerPublic)

	serverBlob, err := read(256)
	if err != nil {
		return err
	}
	copy(s.ServerBlob[:], serverBlob)

	salt, err := read(10)
	if err != nil {
		return err
	}
	copy(s.Salt[:], salt)

	paddingLenB, err := read(1)
	if err != nil {
		return err
	}
	paddingLen := int(paddingLenB[0])
	if paddingLen <= 0 {
		return newErr(Malformed, "padding_length must be > 0")
	}

	usernameLenB, err := read(1)
	if err != nil {
		return err
	}
	usernameLen := int(usernameLenB[0])

	lenFields, err := read(8)
	if err != nil {
		return err
	}
	lr := NewReader(lenFields)
	puzzleChallengeLen, _ := lr.ReadU16()
	unknown1, _ := lr.ReadU16()
	unknown2, _ := lr.ReadU16()
	unknown3, _ := lr.ReadU16()

	if _, err := read(paddingLen); err != nil {
		return err
	}

	username, err := read(usernameLen)
	if err != nil {
		return err
	}
	s.Username = username

	puzzleBlockLen := int(puzzleChallengeLen) + int(unknown1) + int(unknown2) + int(unknown3)
	puzzleBlock, err := read(puzzleBlockLen)
	if err != nil {
		return err
	}

	s.InitialServerPacket = transcript

	pr := NewReader(puzzleBlock)
	marker, err := pr.ReadU8()
	if err != nil {
		return err
	}
	if marker != 0x01 {
		return newErr(Malformed, "puzzle block marker must be 0x01")
	}
	denominator, err := pr.ReadU8()
	if err != nil {
		return err
	}
	magic, err := pr.ReadU32()
	if err != nil {
		return err
	}
	s.PuzzleDenominator = denominator
	s.PuzzleMagic = magic

	return nil
}

// transcript returns the key-derivation input of spec.md §4.4 step H3:
// initial_client_packet || initial_server_packet || salt || username.
func (s *Session) transcript() []byte {
	out := make([]byte, 0, len(s.InitialClientPacket)+len(s.InitialServerPacket)+10+len(s.Username))
	out = append(out, s.InitialClientPacket...)
	out = append(out, s.InitialServerPacket...)
	out = append(out, s.Salt[:]...)
	out = append(out, s.Username...)
	return out
}

// deriveSessionKeysAndSolvePuzzle implements spec.md §4.4 step H3.
func deriveSessionKeysAndSolvePuzzle(s *Session, metrics Metrics) error {
	shared, err := s.dhKeyPair.Agree(s.DHServerPublic[:])
	if err != nil {
		return err
	}

	pool := deriveKeys(shared, s.transcript())

	var hmacKey, sendKey, recvKey [32]byte
	copy(hmacKey[:20], pool[0:20])
	copy(sendKey[:], pool[20:52])
	copy(recvKey[:], pool[52:84])

	authHMAC := HMACSHA1(hmacKey[:20], s.transcript())

	s.setKeys(hmacKey, sendKey, recvKey, authHMAC)

	puzzleStart := time.Now()
	solution, iterations := solvePuzzleCounted(s.ServerRandom, s.PuzzleDenominator, s.PuzzleMagic)
	s.PuzzleSolution = solution
	metrics.PuzzleSolved(iterations, time.Since(puzzleStart))
	return nil
}

// clientAuthTrailerLen pads H4's packet out to the 51 bytes spec.md
// §4.4 declares: its own field list (20 + 1 + 1 + 2 + 4 + 8) only sums
// to 36, 15 bytes short of the stated total. See DESIGN.md's Open
// Questions for the reconciliation; this engine trusts the declared
// packet length over the itemized field list and appends the
// difference as trailing reserved zero bytes.
const clientAuthTrailerLen = 51 - (20 + 1 + 1 + 2 + 4 + 8)

// sendClientAuth builds and sends H4's 51-byte plaintext packet.
func sendClientAuth(conn io.Writer, s *Session) error {
	w := NewWriter(51)
	w.PutBytes(s.AuthHMAC[:]) // 20 bytes
	w.PutU8(0)                // random length
	w.PutU8(0)                // reserved
	w.PutU16(8)                // puzzle_solution.length
	w.PutU32(0)                // reserved
	solution := s.PuzzleSolution
	w.PutBytes(solution[:]) // 8 bytes
	w.PutZeros(clientAuthTrailerLen)

	if _, err := conn.Write(w.Bytes()); err != nil {
		return wrapErr(ConnectionLost, "failed to write client auth", err)
	}
	return nil
}

// receiveAuthStatus implements H5: it checks the status byte and
// discards the status payload. Both cipher directions were already
// keyed by setKeys during H3; the transport layer uses them only after
// Handshake returns successfully.
func receiveAuthStatus(conn io.Reader, s *Session) error {
	hdr, err := readExact(conn, 2)
	if err != nil {
		return err
	}
	if hdr[0] != 0 {
		return newErr(AuthFailed, fmtAuthFailed(hdr[1]))
	}

	payloadLen := int(hdr[1])
	if payloadLen < 1 {
		return newErr(Malformed, "auth status payload length must be >= 1")
	}
	if _, err := readExact(conn, payloadLen); err != nil {
		return err
	}

	return nil
}
