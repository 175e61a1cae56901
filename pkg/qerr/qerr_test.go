package qerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeString(t *testing.T) {
	assert.Equal(t, "NO_ERROR", NoError.String())
	assert.Equal(t, "FLOW_CONTROL_ERROR", FlowControlError.String())
	assert.Equal(t, "CRYPTO_ERROR(alert=40)", (CryptoErrorBase + 40).String())
	assert.Equal(t, "UNKNOWN(0x9999)", Code(0x9999).String())
}

func TestTransportError(t *testing.T) {
	e := Transport(FlowControlError, "too much data")
	assert.Equal(t, KindTransport, e.Kind)
	assert.False(t, e.HasFrameType)
	assert.Equal(t, "FLOW_CONTROL_ERROR: too much data", e.Error())
}

func TestTransportFrameError(t *testing.T) {
	e := TransportFrame(FrameEncodingError, 0x1a, "bad length")
	assert.True(t, e.HasFrameType)
	assert.Equal(t, uint64(0x1a), e.FrameType)
	assert.Equal(t, "FRAME_ENCODING_ERROR (frame 0x1a): bad length", e.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	e := Transport(InternalError, "wrapped").Wrap(cause)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "wrapped")
}

func TestApplicationError(t *testing.T) {
	e := Application(42, "bye")
	assert.Equal(t, KindApplication, e.Kind)
	assert.Equal(t, "application error 0x2a: bye", e.Error())
}

func TestInternalError(t *testing.T) {
	cause := errors.New("cause")
	e := Internal("broke", cause)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "internal error: broke: cause", e.Error())

	e2 := Internal("broke2", nil)
	assert.Equal(t, "internal error: broke2", e2.Error())
}

func TestFromPeerTransportSetsByPeer(t *testing.T) {
	e := FromPeerTransport(ProtocolViolation, 0, false, "peer says so")
	assert.True(t, e.ByPeer)
	assert.Equal(t, KindTransport, e.Kind)
}

func TestFromPeerApplicationSetsByPeer(t *testing.T) {
	e := FromPeerApplication(7, "peer app close")
	assert.True(t, e.ByPeer)
	assert.Equal(t, KindApplication, e.Kind)
}

func TestDecryptErrorMessage(t *testing.T) {
	e := &DecryptError{Reason: "tag mismatch"}
	assert.Equal(t, "decrypt failure: tag mismatch", e.Error())
}

func TestStateErrorMessage(t *testing.T) {
	e := &StateError{Reason: "already half-closed"}
	assert.Equal(t, "state error: already half-closed", e.Error())
}

func TestClosedErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, ClosedError.Kind)
}
