package server

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the conversation session cookie
	CookieName = "tripwise_session"
)

// SetSessionCookie sets an HTTP-only session cookie that lives as long as
// an idle session is kept.
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// GetSessionCookie reads the session ID from the cookie
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// getSessionID looks at the cookie first, then the X-Session-Id header
// used by non-browser clients.
func getSessionID(r *http.Request) string {
	if sid, err := GetSessionCookie(r); err == nil && sid != "" {
		return sid
	}
	return r.Header.Get("X-Session-Id")
}
