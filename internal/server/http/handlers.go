package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/logctx"
)

type errorResponse struct {
	Error string `json:"error"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func decodeToken(w http.ResponseWriter, r *http.Request) (string, error) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		return "", err
	}
	if req.Token == "" {
		return "", errors.New("token is required")
	}
	return req.Token, nil
}

func handleHealth(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, err := identity.MustCurrent(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func handleRefresh(svc Tokens, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := decodeToken(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pair, err := svc.Refresh(r.Context(), tok)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, pair)
		case errors.Is(err, errs.ErrThrottled):
			writeError(w, http.StatusTooManyRequests, "too many failed authentications")
		case errors.Is(err, errs.ErrTokenType):
			writeError(w, http.StatusBadRequest, "not a refresh token")
		case errors.Is(err, errs.ErrMalformed), errors.Is(err, errs.ErrInvalidSignature),
			errors.Is(err, errs.ErrExpired), errors.Is(err, errs.ErrInvalidToken),
			errors.Is(err, errs.ErrDecryption):
			writeError(w, http.StatusUnauthorized, "invalid token")
		default:
			logctx.Logger(r.Context(), log).Error("refresh failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal")
		}
	}
}

func handleValidate(svc Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := decodeToken(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, validateResponse{Valid: svc.Validate(r.Context(), tok)})
	}
}
