package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

// ============================================================
// Authentication
// ============================================================

func authRegisterHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/register")
		defer span.End()

		var req domain.Credentials
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := authSvc.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.Credentials
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func authMeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := OwnerIDFromContext(r.Context())
		if ownerID == "" {
			logger.Warn("auth/me: owner missing from context")
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"userId": ownerID})
	}
}
