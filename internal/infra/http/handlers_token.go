package http

import (
	"net/http"
	"strconv"

	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/infra/reports"
)

func (a *API) registerToken(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/token/balance", a.tokenBalance)
	mux.HandleFunc("GET /v1/token/supply", a.tokenSupply)
	mux.HandleFunc("GET /v1/token/discount", a.tokenDiscount)
	mux.HandleFunc("POST /v1/token/mint", a.mint)
	mux.HandleFunc("POST /v1/token/burn", a.burn)
	mux.HandleFunc("POST /v1/token/transfer", a.transfer)
	mux.HandleFunc("POST /v1/token/legacy-batches", a.createLegacyBatch)
	mux.HandleFunc("GET /v1/token/legacy-batches/item", a.getLegacyBatch)
	mux.HandleFunc("POST /v1/token/redeem", a.tokenRedeem)
}

func (a *API) tokenBalance(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	bal, err := a.tokens.BalanceOf(r.Context(), account)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"account": account, "balance": bal.String()})
}

func (a *API) tokenSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := a.tokens.TotalSupply(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"total_supply": supply.String()})
}

func (a *API) tokenDiscount(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	ok, err := a.tokens.HasDiscount(r.Context(), account)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"account": account, "discount": ok})
}

func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     string `json:"to"`
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
	if err := a.tokens.Mint(r.Context(), actor(r), req.To, amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (a *API) burn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
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
	if err := a.tokens.Burn(r.Context(), actor(r), req.From, amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
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
	if err := a.tokens.Transfer(r.Context(), actor(r), req.From, req.To, amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (a *API) createLegacyBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductType int64  `json:"product_type"`
		CostFiat    string `json:"cost_fiat"`
		TotalUnits  int64  `json:"total_units"`
		Code        string `json:"code"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	cost, err := parseAmount(req.CostFiat, money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.tokens.CreateLegacyBatch(r.Context(), actor(r), req.ProductType, cost, req.TotalUnits, req.Code)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]int64{"batch_id": id})
}

func (a *API) getLegacyBatch(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	b, err := a.tokens.LegacyBatch(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"id":              b.ID,
		"product_type":    b.ProductType,
		"cost_fiat":       money.Format(b.CostFiat, money.FiatDecimals),
		"rate":            money.Format(b.Rate, money.TokenDecimals),
		"total_units":     b.TotalUnits,
		"remaining_units": b.RemainingUnits,
		"code":            b.Code,
		"active":          b.Active,
	})
}

func (a *API) tokenRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		BatchID int64  `json:"batch_id"`
		Units   int64  `json:"units"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	tokens, err := a.tokens.Redeem(r.Context(), actor(r), req.Account, req.BatchID, req.Units)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"tokens_moved": tokens.String()})
}

// statementReport streams the xlsx inventory/treasury statement.
func (a *API) statementReport(w http.ResponseWriter, r *http.Request) {
	if err := a.roles.Require(r.Context(), actor(r), rbac.RoleAdmin); err != nil {
		a.writeError(w, r, err)
		return
	}
	batches, err := a.inventory.Batches(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
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
	buf, err := reports.BuildStatement(batches, state, buckets)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="statement.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
