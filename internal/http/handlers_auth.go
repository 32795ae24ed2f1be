package http

import (
	"net/http"

	"nasiya/internal/auth"
	"nasiya/internal/log"
	"nasiya/internal/session"
)

const (
	loginNotConfigured = "Tizimga kirish sozlanmagan"
	loginRejected      = "Login yoki parol noto'g'ri"
)

type loginData struct {
	Enabled  bool
	Username string
	Error    string
}

func (s *Server) loginEnabled() bool {
	return s.issuer != nil && s.credentials.Enabled()
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := loginData{Enabled: s.loginEnabled()}
	if !data.Enabled {
		data.Error = loginNotConfigured
	}
	s.render(w, r, nil, "login.html", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginEnabled() {
		s.render(w, r, NewHTMXResponse().Status(http.StatusNotFound), "login.html",
			loginData{Error: loginNotConfigured})
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
	username := formValue(r.PostForm, "username")
	password := r.PostForm.Get("password")

	if !s.credentials.Check(username, password) {
		s.appMetrics.loginFailures.Add(1)
		logger.WarnContext(r.Context(), "Login rejected",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r))
		s.render(w, r, NewHTMXResponse().Status(http.StatusUnauthorized), "login.html",
			loginData{Enabled: true, Username: username, Error: loginRejected})
		return
	}

	token, err := s.issuer.Issue(username)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue token", log.FieldError, err)
		InternalServerError("Tizimga kirishda xatolik").Write(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.issuer.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	// Screens opened before login hold anonymous results.
	s.endSession(r)
	logger.InfoContext(r.Context(), "Login accepted", "username", username)
	redirect(w, r, "/products")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	s.endSession(r)
	redirect(w, r, "/login")
}

func (s *Server) endSession(r *http.Request) {
	if c, err := r.Cookie(session.CookieName); err == nil {
		s.sessions.End(c.Value)
	}
}
