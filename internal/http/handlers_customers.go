package http

import (
	"context"
	"net/http"

	"nasiya/internal/core"
	"nasiya/internal/log"
	"nasiya/internal/profile"
	"nasiya/internal/screen/customers"
)

// debtorListTarget is the element the search box swaps.
const debtorListTarget = "debtor-list"

type customersData struct {
	Loading bool
	Err     string
	Query   string
	Notice  string
	Debtors []core.Debtor
}

// handleProductsPage renders the list shell and starts the fetch so the
// first partial request usually finds it settled.
func (s *Server) handleProductsPage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Resolve(w, r)
	sess.EnterCustomers().Activate(r.Context())
	s.render(w, r, nil, "products.html", nil)
}

func (s *Server) handleProductsPartial(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Resolve(w, r)
	ctrl := sess.Customers()
	ctrl.Activate(r.Context())
	if q, ok := ParseSearchQuery(r.URL.Query()); ok {
		ctrl.Search(q)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.awaitTimeout)
	state := ctrl.Await(ctx)
	cancel()

	if state.Redirect != "" {
		redirect(w, r, state.Redirect)
		return
	}

	data := customersData{
		Loading: state.Phase == customers.Loading,
		Err:     state.Err,
		Query:   state.Query,
		Notice:  state.Notice,
	}
	if state.Phase == customers.Ready {
		data.Debtors = ctrl.Visible()
	}

	name := "customers_screen"
	if state.Phase == customers.Ready && r.Header.Get("HX-Target") == debtorListTarget {
		name = "debtor_cards"
	}
	s.render(w, r, nil, name, data)
}

func (s *Server) handleProductsStar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.sessions.Resolve(w, r)
	ctrl := sess.Customers()
	if _, found := core.FindDebtor(ctrl.State().Debtors, id); !found {
		NotFoundError("Mijoz topilmadi").Write(w)
		return
	}

	b := NewHTMXResponse()
	err := ctrl.ToggleStar(r.Context(), id)
	d, _ := core.FindDebtor(ctrl.State().Debtors, id)
	if err != nil {
		s.appMetrics.starFailures.Add(1)
		if profile.IsUnauthenticated(err) {
			redirect(w, r, customers.LoginPath)
			return
		}
		b.TriggerErrorNotification(profile.MessageOr(err, customers.StarFallbackError))
	} else {
		s.appMetrics.starToggles.Add(1)
		b.TriggerStarChanged(id, d.IsStarred)
		log.FromContext(r.Context()).DebugContext(r.Context(), "Star toggled",
			log.FieldDebtorID, id, "starred", d.IsStarred)
	}
	s.render(w, r, b, "debtor_card", d)
}
