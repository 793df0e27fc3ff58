package handler

import (
	"net/http"

	"github.com/go-auth-gate/internal/domain"
	"github.com/go-auth-gate/internal/transport/http/cookie"
	"github.com/go-auth-gate/internal/transport/http/middleware"
)

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.VerifyEmail(r.Context(), middleware.PrincipalFromContext(r.Context()),
		cookie.Value(r, cookie.Name(domain.ChannelEmail)), req.Code)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) ResendEmailCode(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ResendEmailCode(r.Context(), middleware.PrincipalFromContext(r.Context()),
		cookie.Value(r, cookie.Name(domain.ChannelEmail)))
	h.respond(w, r, out, err)
}

func (h *AuthHandler) RequestAccountDeletion(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RequestAccountDeletion(r.Context(), middleware.PrincipalFromContext(r.Context()))
	h.respond(w, r, out, err)
}

func (h *AuthHandler) ConfirmAccountDeletion(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.ConfirmAccountDeletion(r.Context(), middleware.PrincipalFromContext(r.Context()),
		cookie.Value(r, cookie.Name(domain.ChannelAccountDeletion)), req.Code)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) RequestPhoneVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.PhoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.RequestPhoneVerification(r.Context(), middleware.PrincipalFromContext(r.Context()), req)
	h.respond(w, r, out, err)
}

func (h *AuthHandler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.VerifyPhone(r.Context(), middleware.PrincipalFromContext(r.Context()),
		cookie.Value(r, cookie.Name(domain.ChannelPhone)), req.Code)
	h.respond(w, r, out, err)
}
