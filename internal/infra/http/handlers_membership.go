package http

import (
	"net/http"
	"time"

	"github.com/perkline/perkline/internal/domain/membership"
	"github.com/perkline/perkline/internal/domain/money"
)

func (a *API) registerMembership(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/membership/purchase", a.purchaseMembership)
	mux.HandleFunc("GET /v1/membership/entitled", a.isEntitled)
	mux.HandleFunc("GET /v1/membership/record", a.membershipRecord)
	mux.HandleFunc("GET /v1/membership/stats", a.membershipStats)
	mux.HandleFunc("POST /v1/membership/extend", a.extendMembership)
	mux.HandleFunc("POST /v1/membership/revoke", a.revokeMembership)
	mux.HandleFunc("POST /v1/membership/sweep", a.sweepExpired)
	mux.HandleFunc("POST /v1/membership/cost", a.setMembershipCost)
	mux.HandleFunc("POST /v1/membership/duration", a.setMembershipDuration)
}

func recordJSON(rec *membership.Record) map[string]any {
	if rec == nil {
		return nil
	}
	return map[string]any{
		"account":       rec.Account,
		"purchase_date": rec.PurchaseDate,
		"expiry_date":   rec.ExpiryDate,
		"renewal_count": rec.RenewalCount,
		"active":        rec.Active,
	}
}

// purchaseMembership buys or renews for the acting account itself.
func (a *API) purchaseMembership(w http.ResponseWriter, r *http.Request) {
	rec, err := a.membership.Purchase(r.Context(), actor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (a *API) isEntitled(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	entitled, err := a.membership.IsEntitled(r.Context(), account)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"account": account, "entitled": entitled})
}

func (a *API) membershipRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := a.membership.Record(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (a *API) membershipStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.membership.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"ever_joined":  stats.EverJoined,
		"active_count": stats.ActiveCount,
		"revenue":      stats.Revenue.String(),
	})
}

func (a *API) extendMembership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Days    int64  `json:"days"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.membership.Extend(r.Context(), actor(r), req.Account, req.Days); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "extended"})
}

func (a *API) revokeMembership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.membership.Revoke(r.Context(), actor(r), req.Account); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (a *API) sweepExpired(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accounts []string `json:"accounts"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	swept, err := a.membership.SweepExpired(r.Context(), actor(r), req.Accounts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"swept": swept})
}

func (a *API) setMembershipCost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cost string `json:"cost"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	cost, err := parseAmount(req.Cost, money.TokenDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.membership.SetCost(r.Context(), actor(r), cost); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) setMembershipDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int64 `json:"days"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.membership.SetDuration(r.Context(), actor(r), time.Duration(req.Days)*24*time.Hour); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
