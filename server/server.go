package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"echonet-emulator/echonet_lite"
	"echonet-emulator/echonet_lite/device"
	"echonet-emulator/echonet_lite/network"
	"echonet-emulator/echonet_lite/schema"
	"echonet-emulator/protocol"
)

// Server はダッシュボード用のWebSocket/RESTサーバーを表す
type Server struct {
	ctx       context.Context
	cancel    context.CancelFunc
	transport WebSocketTransport
	store     *schema.Store
	dev       *device.Device
	queue     *network.TransmissionQueue
}

// NewServer は新しい Server を作成し、REST APIルートとWebSocketハンドラを登録する。
// queue は nil の場合、プロパティ変化のネットワーク告知を行わない。
func NewServer(
	ctx context.Context,
	addr string,
	store *schema.Store,
	dev *device.Device,
	queue *network.TransmissionQueue,
) (*Server, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	transport := NewDefaultWebSocketTransport(serverCtx, addr)

	s := &Server{
		ctx:       serverCtx,
		cancel:    cancel,
		transport: transport,
		store:     store,
		dev:       dev,
		queue:     queue,
	}

	transport.SetConnectHandler(s.handleClientConnect)
	transport.SetMessageHandler(s.handleClientMessage)
	transport.SetDisconnectHandler(s.handleClientDisconnect)

	s.registerRoutes(transport.Router())

	go s.listenForPropertyChanges()

	return s, nil
}

// Transport は下層のWebSocketTransportを返す
func (s *Server) Transport() WebSocketTransport {
	return s.transport
}

// Start はサーバーを起動する
func (s *Server) Start(options StartOptions) error {
	return s.transport.Start(options)
}

// Stop はサーバーを停止する
func (s *Server) Stop() error {
	s.cancel()
	return s.transport.Stop()
}

// listenForPropertyChanges はデバイスのプロパティ変化を監視し、
// 接続中のクライアントへ通知し、ネットワークにも告知する
func (s *Server) listenForPropertyChanges() {
	ch := s.dev.PropertyChangeCh
	for {
		select {
		case <-s.ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			s.notifyPropertyChange(change)
		}
	}
}

func (s *Server) notifyPropertyChange(change device.PropertyChange) {
	payload := protocol.PropertyChangedPayload{
		EOJ:   change.EOJ.Specifier(),
		EPC:   change.Property.EPC.String(),
		Value: change.Property.EDTString(),
	}
	msg, err := protocol.CreateMessage(protocol.MessageTypePropertyChanged, payload, "")
	if err != nil {
		slog.Error("Error creating property_changed message", "err", err)
		return
	}
	if err := s.transport.BroadcastMessage(msg); err != nil {
		slog.Error("Error broadcasting property_changed message", "err", err)
	}

	// ネットワークへはマルチキャストで告知する。結果は待たずにログのみ。
	if s.queue != nil {
		resultCh := s.queue.Enqueue(nil, change.Property.Encode())
		go func() {
			result := <-resultCh
			if result.Err != nil {
				slog.Error("プロパティ変化の告知に失敗", "err", result.Err, "epc", change.Property.EPC.String())
			}
		}()
	}
}

// handleClientConnect は新しいクライアント接続時に初期状態を送信する
func (s *Server) handleClientConnect(connID string) error {
	slog.Info("Client connected", "connID", connID)

	payload := protocol.InitialStatePayload{
		Device:          protocol.DeviceToProtocol(s.dev),
		StandardRelease: string(s.store.StandardRelease()),
	}
	msg, err := protocol.CreateMessage(protocol.MessageTypeInitialState, payload, "")
	if err != nil {
		return fmt.Errorf("initial_state メッセージの作成に失敗: %w", err)
	}
	return s.transport.SendMessage(connID, msg)
}

// handleClientDisconnect はクライアント切断時に呼ばれる
func (s *Server) handleClientDisconnect(connID string) {
	slog.Info("Client disconnected", "connID", connID)
}

// handleClientMessage はクライアントからのメッセージを処理する
func (s *Server) handleClientMessage(connID string, message []byte) error {
	msg, err := protocol.ParseMessage(message)
	if err != nil {
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat, err.Error(), "")
	}

	switch msg.Type {
	case protocol.MessageTypeGetProperties:
		return s.handleGetProperties(connID, msg)
	case protocol.MessageTypeSetProperties:
		return s.handleSetProperties(connID, msg)
	default:
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat,
			fmt.Sprintf("unknown message type: %s", msg.Type), msg.RequestID)
	}
}

// handleGetProperties は get_properties を処理し、現在のデバイス状態を返す。
// EPCリストが空の場合は全プロパティを返す。
func (s *Server) handleGetProperties(connID string, msg *protocol.Message) error {
	var payload protocol.GetPropertiesPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat, err.Error(), msg.RequestID)
	}

	state := protocol.DeviceToProtocol(s.dev)
	if len(payload.EPCs) > 0 {
		filtered := make(map[string]string, len(payload.EPCs))
		for _, epcStr := range payload.EPCs {
			epc, err := echonet_lite.ParseEPC(epcStr)
			if err != nil {
				return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidParameters,
					fmt.Sprintf("invalid EPC: %s", epcStr), msg.RequestID)
			}
			key := epc.String()
			if value, ok := state.Properties[key]; ok {
				filtered[key] = value
			}
		}
		state.Properties = filtered
	}

	response := protocol.InitialStatePayload{
		Device:          state,
		StandardRelease: string(s.store.StandardRelease()),
	}
	out, err := protocol.CreateMessage(protocol.MessageTypeInitialState, response, msg.RequestID)
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, out)
}

// handleSetProperties は set_properties を処理しプロパティ値を更新する
func (s *Server) handleSetProperties(connID string, msg *protocol.Message) error {
	var payload protocol.SetPropertiesPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidRequestFormat, err.Error(), msg.RequestID)
	}
	if len(payload.Properties) == 0 {
		return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidParameters,
			"no properties specified", msg.RequestID)
	}

	for epcStr, valueStr := range payload.Properties {
		epc, err := echonet_lite.ParseEPC(epcStr)
		if err != nil {
			return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidParameters,
				fmt.Sprintf("invalid EPC: %s", epcStr), msg.RequestID)
		}
		edt, err := hex.DecodeString(strings.TrimPrefix(valueStr, "0x"))
		if err != nil {
			return s.sendErrorNotification(connID, protocol.ErrorCodeInvalidParameters,
				fmt.Sprintf("invalid property value for EPC %s: %s", epc, valueStr), msg.RequestID)
		}
		if err := s.dev.Set(epc, edt); err != nil {
			if errors.Is(err, device.ErrUnknownProperty) {
				return s.sendErrorNotification(connID, protocol.ErrorCodeTargetNotFound,
					fmt.Sprintf("unknown EPC: %s", epc), msg.RequestID)
			}
			return s.sendErrorNotification(connID, protocol.ErrorCodeInternalServerError, err.Error(), msg.RequestID)
		}
	}

	return s.sendCommandResult(connID, msg.RequestID, true, nil)
}

func (s *Server) sendCommandResult(connID, requestID string, success bool, resultErr *protocol.Error) error {
	payload := protocol.CommandResultPayload{
		Success: success,
		Error:   resultErr,
	}
	msg, err := protocol.CreateMessage(protocol.MessageTypeCommandResult, payload, requestID)
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, msg)
}

func (s *Server) sendErrorNotification(connID string, code protocol.ErrorCode, message, requestID string) error {
	slog.Info("Sending error notification", "connID", connID, "code", code, "message", message)
	payload := protocol.ErrorNotificationPayload{
		Code:    code,
		Message: message,
	}
	msg, err := protocol.CreateMessage(protocol.MessageTypeErrorNotification, payload, requestID)
	if err != nil {
		return err
	}
	return s.transport.SendMessage(connID, msg)
}
