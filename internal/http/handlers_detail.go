package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"nasiya/internal/attachments"
	"nasiya/internal/log"
	"nasiya/internal/profile"
	"nasiya/internal/screen/detail"
)

type detailData struct {
	ID   string
	View detail.View
}

// renderDetail renders the partial of the current view variant. A failure
// that asks for a login becomes a redirect.
func (s *Server) renderDetail(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, id string, v detail.View) {
	if f, ok := v.(detail.Failed); ok && f.Redirect != "" {
		redirect(w, r, f.Redirect)
		return
	}
	s.render(w, r, b, "detail_"+v.Name(), detailData{ID: id, View: v})
}

// currentDetail returns the open detail screen for the path id. When the
// session no longer has it the browser is sent back to the page.
func (s *Server) currentDetail(w http.ResponseWriter, r *http.Request) (string, *detail.Controller, bool) {
	id := r.PathValue("id")
	sess := s.sessions.Resolve(w, r)
	ctrl, ok := sess.CurrentDetail(id)
	if !ok {
		redirect(w, r, "/news/"+url.PathEscape(id))
		return id, nil, false
	}
	return id, ctrl, true
}

func (s *Server) handleNewsPage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.sessions.Resolve(w, r)
	sess.EnterDetail(id).Activate(r.Context())
	s.render(w, r, nil, "news.html", struct{ ID string }{id})
}

func (s *Server) handleNewsPartial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.sessions.Resolve(w, r)
	ctrl := sess.Detail(id)
	ctrl.Activate(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), s.awaitTimeout)
	v := ctrl.Await(ctx)
	cancel()
	s.renderDetail(w, r, nil, id, v)
}

func (s *Server) handleOpenForm(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.currentDetail(w, r)
	if !ok {
		return
	}
	s.renderDetail(w, r, nil, id, ctrl.OpenForm())
}

func (s *Server) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.currentDetail(w, r)
	if !ok {
		return
	}
	s.renderDetail(w, r, nil, id, ctrl.CancelForm())
}

func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	slot, err := ParseSlot(r.PathValue("slot"))
	if err != nil {
		BadRequestError("Rasm joyi noto'g'ri").Write(w)
		return
	}
	id, ctrl, ok := s.currentDetail(w, r)
	if !ok {
		return
	}

	img, err := ReadImageUpload(w, r, slotField(slot), s.maxImageBytes)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Image upload rejected",
			log.FieldDebtorID, id, "slot", slot, log.FieldError, err)
		s.renderDetail(w, r, NewHTMXResponse().TriggerErrorNotification(commandMessage(err)), id, ctrl.View())
		return
	}
	if hasDraftFields(r.PostForm) {
		ctrl.EditDraft(ParseDraftFields(r.PostForm))
	}

	b := NewHTMXResponse()
	v, err := ctrl.AttachImage(slot, img)
	if err != nil {
		b.TriggerErrorNotification(commandMessage(err))
	} else {
		s.appMetrics.imagesAttached.Add(1)
	}
	s.renderDetail(w, r, b, id, v)
}

// handlePreview serves the bytes behind a draft preview handle.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, ok := s.attachments.Preview(attachments.Handle(r.PathValue("handle")))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id, ctrl, ok := s.currentDetail(w, r)
	if !ok {
		return
	}
	if hasDraftFields(r.PostForm) {
		ctrl.EditDraft(ParseDraftFields(r.PostForm))
	}

	b := NewHTMXResponse()
	v, err := ctrl.Submit(r.Context())
	if success, ok := v.(detail.Success); ok {
		s.appMetrics.paymentsSubmitted.Add(1)
		b.TriggerPaymentRecorded(id, success.Ref).
			TriggerSuccessNotification(paymentSavedMessage)
	} else if err != nil {
		s.appMetrics.paymentFailures.Add(1)
		if isCommandError(err) {
			b.TriggerErrorNotification(commandMessage(err))
		}
	}
	s.renderDetail(w, r, b, id, v)
}

func (s *Server) handleNewsStar(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := s.currentDetail(w, r)
	if !ok {
		return
	}
	b := NewHTMXResponse()
	v, err := ctrl.ToggleStar(r.Context())
	if err != nil {
		s.appMetrics.starFailures.Add(1)
		if profile.IsUnauthenticated(err) {
			redirect(w, r, detail.LoginPath)
			return
		}
		b.TriggerErrorNotification(profile.MessageOr(err, detail.StarFallbackError))
	} else {
		s.appMetrics.starToggles.Add(1)
	}
	s.renderDetail(w, r, b, id, v)
}

// isCommandError reports errors about the screen state rather than the
// payment itself; those are not shown inside the form.
func isCommandError(err error) bool {
	return errors.Is(err, detail.ErrNoForm) ||
		errors.Is(err, detail.ErrBusy) ||
		errors.Is(err, detail.ErrClosed)
}

const paymentSavedMessage = "To'lov saqlandi"

func commandMessage(err error) string {
	switch {
	case errors.Is(err, attachments.ErrTooLarge):
		return "Rasm hajmi juda katta"
	case errors.Is(err, attachments.ErrUnsupportedType):
		return "Faqat rasm fayllari qabul qilinadi"
	case errors.Is(err, attachments.ErrEmpty):
		return "Rasm tanlanmagan"
	case errors.Is(err, attachments.ErrInvalidSlot):
		return "Rasm joyi noto'g'ri"
	case errors.Is(err, detail.ErrNoStorage):
		return "Rasm biriktirish o'chirilgan"
	case errors.Is(err, detail.ErrBusy):
		return "To'lov yuborilmoqda"
	case errors.Is(err, detail.ErrNoForm), errors.Is(err, detail.ErrClosed):
		return "Forma yopilgan"
	}
	return "Rasmni yuklashda xatolik"
}
