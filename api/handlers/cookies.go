package handlers

import (
	"net/http"
	"time"
)

// CookieWriter centralizes cookie policy so every handler sets the same
// flags. Session and anon-scope cookies are HttpOnly; the CSRF cookie is
// readable by the client, which must echo it in the X-CSRF-Token header.
type CookieWriter struct {
	SessionName string
	CSRFName    string
	AnonName    string
	Secure      bool
	SessionTTL  time.Duration
	PreAuthTTL  time.Duration
}

func (c CookieWriter) SetSession(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.SessionName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(c.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieWriter) SetCSRF(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CSRFName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: false,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieWriter) SetAnon(w http.ResponseWriter, scope string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.AnonName,
		Value:    scope,
		Path:     "/",
		MaxAge:   int(c.PreAuthTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieWriter) Clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
