package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type meResponse struct {
	SubjectID string    `json:"sub"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w)
		return
	}

	pair, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponseFor(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshFromCookie(r)
	if token == "" {
		var req refreshRequest
		if err := a.decodeJSON(w, r, &req, true); err != nil {
			writeBadRequest(w)
			return
		}
		token = req.RefreshToken
	}

	pair, err := a.engine.Refresh(r.Context(), token)
	if err != nil {
		if authcore.OutcomeOf(err) == authcore.OutcomeUnauthorized {
			a.clearRefreshCookie(w)
		}
		middleware.WriteError(w, err)
		return
	}

	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponseFor(pair))
}

// handleLogout always answers 204; the engine logs its own failures.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := refreshFromCookie(r)
	if token == "" {
		var req refreshRequest
		if err := a.decodeJSON(w, r, &req, true); err == nil {
			token = req.RefreshToken
		}
	}
	access, _ := authcore.ParseBearer(r.Header.Get("Authorization"))

	a.engine.Logout(r.Context(), token, access)

	a.clearRefreshCookie(w)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authcore.ErrTokenMissing)
		return
	}
	resp := meResponse{
		SubjectID: claims.SubjectID(),
		Email:     claims.Email,
		Role:      claims.Role,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

func tokenResponseFor(pair *authcore.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int64(pair.ExpiresIn / time.Second),
	}
}

// decodeJSON reads one JSON object from the body. With allowEmpty an absent
// body decodes to the zero value.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
