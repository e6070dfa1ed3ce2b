package handler

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const flashCookieName = "flash"

// Flash kinds double as CSS classes in the templates.
const (
	flashSuccess = "success"
	flashDanger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page, e.g.
// "Account created successfully!" after the sign-up redirect.
type Flash struct {
	Kind    string
	Message string
}

// setFlash stores a message for the next page. It lives in a short-lived
// cookie because the message has to survive the redirect that follows
// every form POST. secure mirrors the session cookie's Secure flag.
func setFlash(w http.ResponseWriter, kind, message string, secure bool) {
	// Cookie values can't hold spaces or commas, so the payload is encoded.
	value := base64.RawURLEncoding.EncodeToString([]byte(kind + "|" + message))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   60,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending message. Returns nil when there is
// none or the cookie is garbled.
func popFlash(w http.ResponseWriter, r *http.Request, secure bool) *Flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(string(raw), "|")
	if !ok || message == "" {
		return nil
	}
	if kind != flashSuccess && kind != flashDanger {
		kind = flashDanger
	}
	return &Flash{Kind: kind, Message: message}
}

// redirectWithFlash is the HTML error and success path: remember a
// message, then send the browser elsewhere with 303 See Other.
func (rd *Renderer) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, kind, message string) {
	setFlash(w, kind, message, rd.secureCookies)
	http.Redirect(w, r, url, http.StatusSeeOther)
}
