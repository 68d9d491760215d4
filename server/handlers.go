package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"echonet-emulator/echonet_lite"
	"echonet-emulator/echonet_lite/device"
	"echonet-emulator/protocol"
)

// registerRoutes はREST APIのルートを登録する
func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/schema/devices", s.handleSchemaDeviceList)
		r.Get("/schema/devices/{classCode}", s.handleSchemaDevice)
		r.Get("/schema/releases", s.handleSchemaReleases)
		r.Get("/schema/meta", s.handleSchemaMeta)
		r.Get("/device", s.handleDeviceState)
		r.Put("/device/properties/{epc}", s.handleDeviceSetProperty)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSchemaDeviceList はスキーマに含まれる機器クラスの一覧を返す
func (s *Server) handleSchemaDeviceList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.DeviceList())
}

// handleSchemaDevice は指定クラスのリリース解決済みスキーマを返す。
// クエリパラメータ release でリリースを、epc (カンマ区切り) でプロパティを絞り込める。
func (s *Server) handleSchemaDevice(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "classCode")
	release := r.URL.Query().Get("release")

	var epcFilter []string
	if raw := r.URL.Query().Get("epc"); raw != "" {
		epcFilter = strings.Split(raw, ",")
	}

	descriptor, ok := s.store.Resolve(classCode, epcFilter, release)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("class code not found: %s", classCode))
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

// handleSchemaReleases は既知のリリース一覧を返す
func (s *Server) handleSchemaReleases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"releases":        s.store.ReleaseList(),
		"standardRelease": s.store.StandardRelease(),
	})
}

// handleSchemaMeta はスキーマドキュメントのメタ情報を返す
func (s *Server) handleSchemaMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.MetaData())
}

// handleDeviceState はエミュレート中デバイスの現在状態を返す
func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.DeviceToProtocol(s.dev))
}

type setPropertyRequest struct {
	Value string `json:"value"` // EDTの16進文字列
}

// handleDeviceSetProperty はプロパティ値を更新し、新しい値を返す
func (s *Server) handleDeviceSetProperty(w http.ResponseWriter, r *http.Request) {
	epc, err := echonet_lite.ParseEPC(chi.URLParam(r, "epc"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	edt, err := hex.DecodeString(strings.TrimPrefix(req.Value, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid property value: %s", req.Value))
		return
	}

	if err := s.dev.Set(epc, edt); err != nil {
		if errors.Is(err, device.ErrUnknownProperty) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown EPC: %s", epc))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"epc":   epc.String(),
		"value": strings.ToUpper(strings.TrimPrefix(req.Value, "0x")),
	})
}
