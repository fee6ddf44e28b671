package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const (
	flashCookie = "messages"
	// maxFlashes bounds what a crafted cookie can make us render.
	maxFlashes = 10
)

// Flash levels, used as CSS classes.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func (s *Server) flash(r *http.Request, level, text string) {
	st := stateFrom(r)
	st.flashes = append(st.flashes, Flash{Level: level, Text: text})
}

// takeFlashes hands out pending messages and expires the cookie that carried
// them.
func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	st := stateFrom(r)
	flashes := st.flashes
	st.flashes = nil
	if st.flashCookie {
		st.flashCookie = false
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return flashes
}

// redirect stores pending messages in the cookie and sends a 302.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, location string) {
	st := stateFrom(r)
	if len(st.flashes) > 0 {
		if value, err := encodeFlashes(st.flashes); err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     flashCookie,
				Value:    value,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func encodeFlashes(flashes []Flash) (string, error) {
	if len(flashes) > maxFlashes {
		flashes = flashes[len(flashes)-maxFlashes:]
	}
	data, err := json.Marshal(flashes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// readFlashes decodes the messages cookie. A cookie that does not decode is
// still reported so that it gets cleared.
func readFlashes(r *http.Request) ([]Flash, bool) {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, true
	}
	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil, true
	}

	valid := flashes[:0]
	for _, f := range flashes {
		switch f.Level {
		case LevelSuccess, LevelError, LevelInfo:
			valid = append(valid, f)
		}
	}
	if len(valid) > maxFlashes {
		valid = valid[:maxFlashes]
	}
	return valid, true
}
