package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/lockdown"
	"github.com/mtzanidakis/ghostgate/internal/transform"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Entry overlay
	mux.HandleFunc("GET /api/gate", s.getGate)
	mux.HandleFunc("POST /api/gate/scan", s.scanGate)

	// Vault view
	mux.HandleFunc("GET /api/vault", s.getVault)
	mux.HandleFunc("POST /api/vault/open", s.openVault)
	mux.HandleFunc("POST /api/vault/close", s.closeVault)
	mux.HandleFunc("POST /api/vault/scan", s.scanVault)
	mux.HandleFunc("POST /api/vault/touch", s.touchVault)
	mux.HandleFunc("DELETE /api/vault", s.wipeVault)

	// Entries
	mux.HandleFunc("POST /api/vault/encrypt", s.encryptEntry)
	mux.HandleFunc("POST /api/vault/identities", s.createIdentity)
	mux.HandleFunc("POST /api/vault/entries/{id}/decrypt", s.decryptEntry)
	mux.HandleFunc("GET /api/vault/entries/{id}/export", s.exportEntry)

	// Bare transform
	mux.HandleFunc("POST /api/transform/encode", s.encode)
	mux.HandleFunc("POST /api/transform/decode", s.decode)

	// Scratchpad
	mux.HandleFunc("GET /api/scratchpad", s.getScratchpad)
	mux.HandleFunc("POST /api/scratchpad/encrypt", s.scratchpadEncrypt)
	mux.HandleFunc("POST /api/scratchpad/decrypt", s.scratchpadDecrypt)

	// Lockdown
	mux.HandleFunc("GET /api/lockdown", s.getLockdown)
	mux.HandleFunc("POST /api/panic", s.triggerPanic)
	mux.HandleFunc("POST /api/_/restore", s.restore)
	mux.HandleFunc("POST /api/protocol-zero", s.protocolZero)

	mux.HandleFunc("POST /api/feedback/mute", s.toggleMute)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) getGate(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.gate.Status())
}

func (s *Server) scanGate(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Scan(); err != nil {
		writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, s.gate.Status())
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.session.Snapshot())
}

func (s *Server) openVault(w http.ResponseWriter, r *http.Request) {
	s.session.Open()
	jsonResponse(w, s.session.Snapshot())
}

func (s *Server) closeVault(w http.ResponseWriter, r *http.Request) {
	s.session.Close()
	jsonResponse(w, s.session.Snapshot())
}

func (s *Server) scanVault(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Scan(); err != nil {
		writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) touchVault(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Touch(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) wipeVault(w http.ResponseWriter, r *http.Request) {
	if err := s.session.WipeAll(); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, s.session.Snapshot())
}

func (s *Server) encryptEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
		Key     string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	out, entry, err := s.session.Encrypt(body.Message, body.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		jsonResponse(w, map[string]any{"output": out, "stored": false})
		return
	}
	jsonStatus(w, http.StatusCreated, map[string]any{"output": out, "stored": true, "id": entry.ID})
}

func (s *Server) createIdentity(w http.ResponseWriter, r *http.Request) {
	entry, err := s.session.GenerateIdentity()
	if err != nil {
		writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, map[string]any{
		"id":       entry.ID,
		"name":     entry.Name,
		"email":    entry.Email,
		"location": entry.Location,
	})
}

func (s *Server) decryptEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	text, err := s.session.Decrypt(r.PathValue("id"), body.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, map[string]any{
		"text":   text,
		"failed": transform.IsSentinel(text),
	})
}

func (s *Server) exportEntry(w http.ResponseWriter, r *http.Request) {
	exp, err := s.session.Export(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Write([]byte(exp.Content))
}

type transformRequest struct {
	Text string `json:"text"`
	Key  string `json:"key"`
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request) {
	var body transformRequest
	if !decodeBody(w, r, &body) {
		return
	}
	jsonResponse(w, map[string]string{"output": transform.Encode(body.Text, body.Key)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) {
	var body transformRequest
	if !decodeBody(w, r, &body) {
		return
	}
	jsonResponse(w, map[string]string{"output": transform.Decode(body.Text, body.Key)})
}

func (s *Server) getScratchpad(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.scratchpad.State())
}

func (s *Server) scratchpadEncrypt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message      string `json:"message"`
		Key          string `json:"key"`
		SelfDestruct bool   `json:"self_destruct"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	st, err := s.scratchpad.Encrypt(body.Message, body.Key, body.SelfDestruct)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, st)
}

func (s *Server) scratchpadDecrypt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
		Key     string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	jsonResponse(w, s.scratchpad.Decrypt(body.Message, body.Key))
}

func (s *Server) getLockdown(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.lockdown.Status())
}

func (s *Server) triggerPanic(w http.ResponseWriter, r *http.Request) {
	s.lockdown.Panic()
	jsonResponse(w, s.lockdown.Status())
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	if !s.lockdown.Reset() {
		jsonError(w, "not in panic mode", http.StatusConflict)
		return
	}
	jsonResponse(w, s.lockdown.Status())
}

func (s *Server) protocolZero(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirmation string `json:"confirmation"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.lockdown.InitiateProtocolZero(body.Confirmation); err != nil {
		writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, s.lockdown.Status())
}

func (s *Server) toggleMute(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]bool{"muted": s.mixer.Toggle()})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	natsStatus := "disabled"
	if s.nats != nil {
		natsStatus = "ok"
	}

	jsonResponse(w, map[string]any{
		"status":    "ok",
		"gate":      s.gate.Status(),
		"vault":     snap.State,
		"entries":   snap.Count,
		"usage":     snap.Usage,
		"lockdown":  s.lockdown.Status(),
		"clients":   s.hub.Count(),
		"uptime":    formatUptime(time.Since(s.startedAt)),
		"nats":      natsStatus,
		"timestamp": time.Now().UTC(),
		"version":   s.version,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps controller errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, vault.ErrAccessDenied):
		code = http.StatusForbidden
	case errors.Is(err, vault.ErrLocked), errors.Is(err, lockdown.ErrVaultLocked):
		code = http.StatusLocked
	case errors.Is(err, vault.ErrEntryNotFound):
		code = http.StatusNotFound
	case errors.Is(err, vault.ErrNotDecryptable), errors.Is(err, lockdown.ErrConfirmationRequired):
		code = http.StatusBadRequest
	case errors.Is(err, vault.ErrViewClosed), errors.Is(err, lockdown.ErrProtocolZeroActive):
		code = http.StatusConflict
	}
	jsonError(w, err.Error(), code)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
