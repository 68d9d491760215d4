package protocol

import (
	"encoding/json"
	"fmt"

	"echonet-emulator/echonet_lite/device"
)

// MessageType はダッシュボードとの間で交わすメッセージの種別
type MessageType string

const (
	// Server -> Client message types
	MessageTypeInitialState      MessageType = "initial_state"
	MessageTypePropertyChanged   MessageType = "property_changed"
	MessageTypeErrorNotification MessageType = "error_notification"
	MessageTypeCommandResult     MessageType = "command_result"

	// Client -> Server message types
	MessageTypeGetProperties MessageType = "get_properties"
	MessageTypeSetProperties MessageType = "set_properties"
)

// ErrorCode はエラーメッセージのコード
type ErrorCode string

const (
	ErrorCodeInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrorCodeInvalidParameters    ErrorCode = "INVALID_PARAMETERS"
	ErrorCodeTargetNotFound       ErrorCode = "TARGET_NOT_FOUND"
	ErrorCodeInternalServerError  ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Message is the base structure for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// Error represents an error in the WebSocket protocol
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DeviceState はエミュレート中の機器の状態。プロパティ値は16進文字列。
type DeviceState struct {
	EOJ        string            `json:"eoj"`
	ClassName  string            `json:"className"`
	Release    string            `json:"release"`
	Properties map[string]string `json:"properties"`
}

// InitialStatePayload is the payload for the initial_state message
type InitialStatePayload struct {
	Device          DeviceState `json:"device"`
	StandardRelease string      `json:"standardRelease"`
}

// PropertyChangedPayload is the payload for the property_changed message
type PropertyChangedPayload struct {
	EOJ   string `json:"eoj"`
	EPC   string `json:"epc"`
	Value string `json:"value"` // EDTの16進文字列
}

// ErrorNotificationPayload is the payload for the error_notification message
type ErrorNotificationPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CommandResultPayload is the payload for the command_result message
type CommandResultPayload struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error,omitempty"`
}

// GetPropertiesPayload is the payload for the get_properties message
type GetPropertiesPayload struct {
	EPCs []string `json:"epcs"` // 空の場合は全プロパティ
}

// SetPropertiesPayload is the payload for the set_properties message
type SetPropertiesPayload struct {
	Properties map[string]string `json:"properties"` // EPC → EDTの16進文字列
}

// ParseMessage parses a JSON message into a Message struct
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// CreateMessage creates a JSON message with the given type, payload and request ID
func CreateMessage(msgType MessageType, payload interface{}, requestID string) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling payload: %w", err)
	}
	msg := Message{
		Type:      msgType,
		Payload:   payloadJSON,
		RequestID: requestID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("error marshaling message: %w", err)
	}
	return data, nil
}

// ParsePayload はメッセージのペイロードを指定の構造体に取り出す
func ParsePayload(msg *Message, v interface{}) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("error parsing %s payload: %w", msg.Type, err)
	}
	return nil
}

// DeviceToProtocol converts device state to the protocol format
func DeviceToProtocol(d *device.Device) DeviceState {
	props := d.Properties()
	state := DeviceState{
		EOJ:        d.EOJ().Specifier(),
		ClassName:  d.ClassName(),
		Release:    d.Release().String(),
		Properties: make(map[string]string, len(props)),
	}
	for _, p := range props {
		state.Properties[p.EPC.String()] = p.EDTString()
	}
	return state
}
