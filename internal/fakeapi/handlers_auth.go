package fakeapi

import (
	"errors"
	"net/http"
	"time"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates with email and password. Users with OTP enabled get
// {"otp_required": true} instead of tokens.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := s.users.Authenticate(req.Email, req.Password)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, err.Error())
			return
		}
		if user.OTPRequired {
			writeData(w, http.StatusAccepted, map[string]bool{"otp_required": true}, nil)
			return
		}
		s.respondWithTokens(w, http.StatusOK, user)
	}
}

func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "email is required")
			return
		}
		if err := ValidatePasswordStrength(req.Password); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		user, err := s.users.Create(req.Email, req.Password, false, s.nowFunc())
		if errors.Is(err, errUserExists) {
			writeDetail(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "could not create user")
			return
		}
		s.respondWithTokens(w, http.StatusCreated, user)
	}
}

func (s *Server) VerifyOTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body")
			return
		}
		user, ok := s.users.GetByEmail(req.Email)
		if !ok || req.Code != s.otpCode {
			writeDetail(w, http.StatusUnauthorized, "invalid one-time code")
			return
		}
		s.respondWithTokens(w, http.StatusOK, user)
	}
}

// Refresh rotates a refresh token: the old one stops working and a new pair
// is returned in the envelope.
func (s *Server) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCount.Add(1)
		s.sleepForRefresh(r)

		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeDetail(w, http.StatusBadRequest, "refresh_token is required")
			return
		}
		if s.failRefresh.Load() {
			writeDetail(w, http.StatusUnauthorized, "refresh token revoked")
			return
		}

		tokens, err := s.rotateRefreshToken(req.RefreshToken)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeData(w, http.StatusOK, newTokenPayload(tokens), nil)
	}
}

// Logout drops the refresh token from the body and revokes the bearer access
// token, if any.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = decodeJSON(r, &req)
		if req.RefreshToken != "" {
			s.refreshTokens.Delete(req.RefreshToken)
		}
		if token, ok := bearerToken(r); ok {
			s.revokeAccessToken(token)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.users.GetByID(userIDFrom(r.Context()))
		if !ok {
			writeDetail(w, http.StatusNotFound, "user not found")
			return
		}
		writeData(w, http.StatusOK, user, nil)
	}
}

func (s *Server) respondWithTokens(w http.ResponseWriter, status int, user *User) {
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue tokens")
		writeDetail(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	s.users.SetLastLogin(user.Email, s.nowFunc())
	writeData(w, status, newTokenPayload(tokens), nil)
}

func (s *Server) sleepForRefresh(r *http.Request) {
	if s.refreshDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.refreshDelay):
	case <-r.Context().Done():
	}
}
