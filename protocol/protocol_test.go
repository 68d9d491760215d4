package protocol

import (
	"encoding/json"
	"testing"

	"echonet-emulator/echonet_lite/device"
	"echonet-emulator/echonet_lite/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"set_properties","payload":{"properties":{"80":"31"}},"requestId":"req-1"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeSetProperties, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)

	var payload SetPropertiesPayload
	require.NoError(t, ParsePayload(msg, &payload))
	assert.Equal(t, map[string]string{"80": "31"}, payload.Properties)
}

func TestParseMessage_Errors(t *testing.T) {
	_, err := ParseMessage([]byte(`{`))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`{"payload":{}}`))
	assert.Error(t, err, "message without type should be rejected")
}

func TestCreateMessage_RoundTrip(t *testing.T) {
	payload := PropertyChangedPayload{EOJ: "0130:1", EPC: "80", Value: "31"}
	data, err := CreateMessage(MessageTypePropertyChanged, payload, "req-2")
	require.NoError(t, err)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypePropertyChanged, msg.Type)
	assert.Equal(t, "req-2", msg.RequestID)

	var back PropertyChangedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &back))
	assert.Equal(t, payload, back)
}

func TestDeviceToProtocol(t *testing.T) {
	d, err := device.New(&schema.DeviceDescriptor{
		ClassCode: "0130",
		Release:   "F",
		ClassName: "Home air conditioner",
		EPCs:      []string{"80", "B0"},
	}, 1)
	require.NoError(t, err)
	require.NoError(t, d.Set(0xB0, []byte{0x41}))

	state := DeviceToProtocol(d)
	assert.Equal(t, "0130:1", state.EOJ)
	assert.Equal(t, "Home air conditioner", state.ClassName)
	assert.Equal(t, "F", state.Release)
	assert.Equal(t, map[string]string{"80": "30", "B0": "41"}, state.Properties)
}
