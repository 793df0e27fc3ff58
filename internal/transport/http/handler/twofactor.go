package handler

import (
	"net/http"

	"github.com/go-auth-gate/internal/transport/http/middleware"
)

// BeginTwoFactorSetup returns a new TOTP key for the caller to enrol.
func (h *AuthHandler) BeginTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.BeginTwoFactorSetup(r.Context(), middleware.PrincipalFromContext(r.Context()))
	h.respond(w, r, out, err)
}

func (h *AuthHandler) FinishTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.FinishTwoFactorSetup(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Key, req.Code)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.VerifyTwoFactor(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Code)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) ResetTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.ResetTwoFactor(r.Context(), middleware.PrincipalFromContext(r.Context()), req.Code)
	h.respond(w, r, out, err)
}
