package http

import (
	"bytes"
	"html/template"
	"math"
	"net/http"
	"strconv"

	"nasiya/internal/attachments"
	"nasiya/internal/core"
	"nasiya/internal/log"
)

var templateFuncs = template.FuncMap{
	"som":    core.FormatSom,
	"number": core.FormatNumber,
	"phone": func(d core.Debtor) string {
		if p := d.PrimaryPhone(); p != "" {
			return p
		}
		return "Telefon raqam kiritilmagan"
	},
	"barWidth": func(t core.Transaction) string {
		return strconv.FormatFloat(core.ProgressWidth(t.PaidAmount, t.Amount), 'f', 0, 64)
	},
	"percent": func(t core.Transaction) string {
		return strconv.FormatFloat(math.Round(core.Progress(t.PaidAmount, t.Amount)), 'f', 0, 64)
	},
	"preview": func(h attachments.Handle) string {
		if h.IsZero() {
			return ""
		}
		return "/drafts/previews/" + string(h)
	},
	"slotField": slotField,
}

// slotField names the file input of an attachment slot.
func slotField(slot int) string { return "image" + strconv.Itoa(slot) }

// render executes name into a buffer first so a template failure never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.appMetrics.renderErrors.Add(1)
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template render failed",
			"template", name,
			log.FieldError, err)
		InternalServerError("Sahifani ko'rsatishda xatolik").Write(w)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.BodyHTML(buf.String()).Write(w)
}

// isHTMX reports whether r was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to path: HX-Redirect for htmx requests,
// 303 See Other for plain ones.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(path).Write(w)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
