package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDHKeyPair_AgreeIsSymmetric(t *testing.T) {
	alice, err := GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := GenerateDHKeyPair()
	require.NoError(t, err)

	sharedA, err := alice.Agree(bob.Public[:])
	require.NoError(t, err)
	sharedB, err := bob.Agree(alice.Public[:])
	require.NoError(t, err)

	assert.Equal(t, sharedA, sharedB)
}

func TestDHKeyPair_AgreeRejectsWrongLength(t *testing.T) {
	kp, err := GenerateDHKeyPair()
	require.NoError(t, err)

	_, err = kp.Agree([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, IsKind(err, Malformed))
}

func TestGenerateRSAKeyPair_ModulusWidth(t *testing.T) {
	kp, err := GenerateRSAKeyPair()
	require.NoError(t, err)
	assert.Len(t, kp.Public, rsaModulusLen)
}

func TestHMACSHA1_Deterministic(t *testing.T) {
	key := []byte("key")
	msg := []byte("message")
	assert.Equal(t, HMACSHA1(key, msg), HMACSHA1(key, msg))
}

func TestDeriveKeys_ProducesFullPool(t *testing.T) {
	var shared [96]byte
	for i := range shared {
		shared[i] = byte(i)
	}
	pool := deriveKeys(shared, []byte("transcript"))

	zero := true
	for _, b := range pool {
		if b != 0 {
			zero = false
			break
		}
	}
	assert.False(t, zero)

	pool2 := deriveKeys(shared, []byte("transcript"))
	assert.Equal(t, pool, pool2, "KDF must be deterministic for the same inputs")

	pool3 := deriveKeys(shared, []byte("different transcript"))
	assert.NotEqual(t, pool, pool3)
}

func TestPuzzleAccept_ZeroDenominatorAlwaysAccepts(t *testing.T) {
	var serverRandom [16]byte
	var solution [8]byte
	assert.True(t, puzzleAccept(serverRandom, solution, 0, 0xdeadbeef))
}

func TestSolvePuzzle_ProducesAcceptedSolution(t *testing.T) {
	var serverRandom [16]byte
	copy(serverRandom[:], []byte("sixteen-byte-rnd"))

	const denominator = 8
	const magic = 0x1234

	solution := solvePuzzle(serverRandom, denominator, magic)
	assert.True(t, puzzleAccept(serverRandom, solution, denominator, magic))
}

func TestSolvePuzzleCounted_ReportsAtLeastOneIteration(t *testing.T) {
	var serverRandom [16]byte
	_, iterations := solvePuzzleCounted(serverRandom, 4, 0)
	assert.GreaterOrEqual(t, iterations, uint64(1))
}
