package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
)

func (a *API) setRefreshCookie(w http.ResponseWriter, pair *authcore.TokenPair) {
	ttl := pair.RefreshExpiresIn
	if ttl <= 0 {
		ttl = a.cfg.RefreshTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     RefreshCookiePath,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshFromCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
