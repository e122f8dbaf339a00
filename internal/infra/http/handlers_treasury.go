package http

import (
	"context"
	"encoding/base64"
	"math/big"
	"net/http"
	"strconv"

	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/treasury"
)

func (a *API) registerTreasury(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/treasury", a.treasuryState)
	mux.HandleFunc("POST /v1/treasury/membership-payment", a.membershipPayment)
	mux.HandleFunc("POST /v1/treasury/sale-proceeds", a.saleProceeds)
	mux.HandleFunc("POST /v1/treasury/product-revenue", a.productRevenue)
	mux.HandleFunc("POST /v1/treasury/allocate", a.allocate)
	mux.HandleFunc("POST /v1/treasury/spend", a.spend)
	mux.HandleFunc("POST /v1/treasury/authorize-caller", a.authorizeCaller)
	mux.HandleFunc("POST /v1/treasury/product-purchase", a.productPurchase)
	mux.HandleFunc("GET /v1/treasury/product-purchases", a.listProductPurchases)
	mux.HandleFunc("POST /v1/treasury/emergency-withdraw", a.emergencyWithdraw)
}

func (a *API) treasuryState(w http.ResponseWriter, r *http.Request) {
	state, err := a.treasury.State(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	buckets, err := a.treasury.BucketStates(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	bout := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		bout = append(bout, map[string]any{
			"bucket":    b.Bucket,
			"currency":  b.Currency,
			"allocated": b.Allocated.String(),
			"spent":     b.Spent.String(),
		})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"token_balance":      state.TokenBalance.String(),
		"stable_balance":     state.StableBalance.String(),
		"revenue_membership": state.RevenueMembership.String(),
		"revenue_sale":       state.RevenueSale.String(),
		"revenue_product":    state.RevenueProduct.String(),
		"buckets":            bout,
	})
}

func (a *API) membershipPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, money.TokenDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.treasury.RecordMembershipPayment(r.Context(), actor(r), amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (a *API) saleProceeds(w http.ResponseWriter, r *http.Request) {
	a.receive(w, r, a.treasury.ReceiveSaleProceeds)
}

func (a *API) productRevenue(w http.ResponseWriter, r *http.Request) {
	a.receive(w, r, a.treasury.ReceiveProductRevenue)
}

func (a *API) receive(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor string, amount *big.Int) error) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := fn(r.Context(), actor(r), amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (a *API) allocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string `json:"bucket"`
		Amount string `json:"amount"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	bucket := treasury.Bucket(req.Bucket)
	amount, err := a.bucketAmount(bucket, req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.treasury.Allocate(r.Context(), actor(r), bucket, amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "allocated"})
}

func (a *API) spend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket    string `json:"bucket"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
		Note      string `json:"note"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	bucket := treasury.Bucket(req.Bucket)
	amount, err := a.bucketAmount(bucket, req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.treasury.Spend(r.Context(), actor(r), bucket, req.Recipient, amount, req.Note); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "spent"})
}

// bucketAmount parses an amount at the bucket's own currency scale.
func (a *API) bucketAmount(bucket treasury.Bucket, s string) (*big.Int, error) {
	c, ok := treasury.BucketCurrency(bucket)
	if !ok {
		return nil, treasury.ErrUnknownBucket
	}
	decimals := money.TokenDecimals
	if c == treasury.CurrencyStable {
		decimals = money.FiatDecimals
	}
	return parseAmount(s, decimals)
}

func (a *API) authorizeCaller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller     string `json:"caller"`
		Authorized bool   `json:"authorized"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.treasury.AuthorizeCaller(r.Context(), actor(r), req.Caller, req.Authorized); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) productPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID int64  `json:"order_id"`
		Amount  string `json:"amount"`
		Payload string `json:"payload"` // base64-encoded opaque blob
	}
	if !a.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		a.writeError(w, r, errBadRequest)
		return
	}
	id, err := a.treasury.RecordProductPurchase(r.Context(), actor(r), req.OrderID, amount, payload)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]int64{"purchase_id": id})
}

func (a *API) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency  string `json:"currency"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	c := treasury.Currency(req.Currency)
	decimals := money.TokenDecimals
	if c == treasury.CurrencyStable {
		decimals = money.FiatDecimals
	}
	amount, err := parseAmount(req.Amount, decimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.treasury.EmergencyWithdraw(r.Context(), actor(r), c, req.Recipient, amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (a *API) listProductPurchases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	purchases, err := a.treasury.ProductPurchases(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, map[string]any{
			"id":       p.ID,
			"order_id": p.OrderID,
			"caller":   p.Caller,
			"amount":   money.Format(p.Amount, money.FiatDecimals),
			"payload":  base64.StdEncoding.EncodeToString(p.Payload),
			"at":       p.At,
		})
	}
	a.writeJSON(w, http.StatusOK, out)
}
