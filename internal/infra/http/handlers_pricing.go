package http

import (
	"net/http"
	"strconv"

	"github.com/perkline/perkline/internal/domain/money"
)

func (a *API) registerPricing(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/pricing/rate", a.getRate)
	mux.HandleFunc("POST /v1/pricing/rate", a.setRate)
	mux.HandleFunc("GET /v1/pricing/quote", a.quote)
	mux.HandleFunc("GET /v1/pricing/product-types", a.listProductTypes)
	mux.HandleFunc("POST /v1/pricing/product-types", a.createProductType)
	mux.HandleFunc("POST /v1/pricing/margin", a.setMargin)
}

func (a *API) getRate(w http.ResponseWriter, r *http.Request) {
	rate, err := a.pricing.Rate(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"value":      money.Format(rate.Value, money.FiatDecimals),
		"updated_by": rate.UpdatedBy,
		"updated_at": rate.UpdatedAt,
	})
}

func (a *API) setRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	v, err := parseAmount(req.Value, money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.pricing.SetExchangeRate(r.Context(), actor(r), v); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// quote computes a token quantity for a fiat cost, either against a product
// type's margin or an explicit margin_bps.
func (a *API) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cost, err := parseAmount(q.Get("cost"), money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var tokens interface{ String() string }
	if m := q.Get("margin_bps"); m != "" {
		margin, perr := strconv.ParseInt(m, 10, 64)
		if perr != nil {
			a.writeError(w, r, errBadRequest)
			return
		}
		tokens, err = a.pricing.CalculateRateWithMargin(r.Context(), cost, margin)
	} else {
		productType, _ := strconv.ParseInt(q.Get("product_type"), 10, 64)
		tokens, err = a.pricing.CalculateRate(r.Context(), cost, productType)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"tokens": tokens.String()})
}

func (a *API) listProductTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.pricing.ProductTypes(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, types)
}

func (a *API) createProductType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		MarginBps int64  `json:"margin_bps"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.pricing.CreateProductType(r.Context(), actor(r), req.Name, req.MarginBps)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, p)
}

func (a *API) setMargin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductType int64 `json:"product_type"`
		MarginBps   int64 `json:"margin_bps"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.pricing.SetMargin(r.Context(), actor(r), req.ProductType, req.MarginBps); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
