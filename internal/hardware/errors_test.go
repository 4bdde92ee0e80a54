package hardware_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/go-hardware-signer/internal/hardware"
)

func TestErrorKindMatching(t *testing.T) {
	err := hardware.DeviceRejected("user declined on device")
	assert.True(t, errors.Is(err, hardware.DeviceRejected("")))
	assert.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))
	assert.False(t, hardware.IsKind(err, hardware.KindUnsupportedOperation))
	assert.Equal(t, "device_rejected: user declined on device", err.Error())
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(hardware.ErrTransportNotInitialized, "failed to fetch address")

	kind, ok := hardware.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, hardware.KindTransportNotInitialized, kind)
	assert.True(t, errors.Is(err, hardware.ErrTransportNotInitialized))
}

func TestMissingField(t *testing.T) {
	err := hardware.MissingField("psbtTx")
	assert.True(t, hardware.IsKind(err, hardware.KindMissingField))
	assert.Contains(t, err.Error(), "psbtTx")
}

func TestFromTransportError(t *testing.T) {
	// already classified errors pass through unchanged
	classified := hardware.ErrPopupFailedToOpen
	assert.Equal(t, error(classified), hardware.FromTransportError(classified))

	// arbitrary transport failures normalize to a rejection keeping the message
	err := hardware.FromTransportError(errors.New("Permissions not granted"))
	require.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))

	var taxonomy *hardware.Error
	require.True(t, errors.As(err, &taxonomy))
	assert.Equal(t, "Permissions not granted", taxonomy.Message)

	assert.NoError(t, hardware.FromTransportError(nil))
}
