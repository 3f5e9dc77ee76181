package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocolError_ErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapErr(ConnectionLost, "write failed", cause)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "connection-lost")
}

func TestProtocolError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapErr(Malformed, "bad field", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsKind(t *testing.T) {
	err := newErr(AuthFailed, "nope")
	assert.True(t, IsKind(err, AuthFailed))
	assert.False(t, IsKind(err, Malformed))
	assert.False(t, IsKind(errors.New("plain"), AuthFailed))
}

func TestRejectCauseFor_RegionMismatchIsNotProfileIncomplete(t *testing.T) {
	assert.Equal(t, RejectProfileIncomplete, rejectCauseFor(0x06))
	assert.Equal(t, RejectRegionMismatch, rejectCauseFor(0x09))
	assert.NotEqual(t, rejectCauseFor(0x06), rejectCauseFor(0x09))
}

func TestNewRejectErr_CarriesUpgradeURL(t *testing.T) {
	err := newRejectErr(0x01, "https://example.test/upgrade")
	assert.Equal(t, RejectUpgradeRequired, err.UserCause)
	assert.Equal(t, "https://example.test/upgrade", err.UpgradeURL)
	assert.Equal(t, HandshakeRejected, err.Kind)
}
