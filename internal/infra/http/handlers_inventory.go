package http

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/perkline/perkline/internal/domain/inventory"
	"github.com/perkline/perkline/internal/domain/money"
)

func (a *API) registerInventory(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/batches", a.listBatches)
	mux.HandleFunc("GET /v1/batches/item", a.getBatch)
	mux.HandleFunc("POST /v1/batches", a.createBatch)
	mux.HandleFunc("POST /v1/batches/pricing", a.updateBatchPricing)
	mux.HandleFunc("POST /v1/batches/stock", a.adjustStock)
	mux.HandleFunc("POST /v1/batches/redeem", a.recordRedemption)
	mux.HandleFunc("POST /v1/batches/recalculate", a.recalculateRates)
	mux.HandleFunc("POST /v1/batches/reactivate", a.reactivateBatch)
	mux.HandleFunc("POST /v1/batches/deactivate", a.deactivateBatch)
}

func batchJSON(b inventory.Batch) map[string]any {
	return map[string]any{
		"id":              b.ID,
		"product_type":    b.ProductType,
		"cost_fiat":       money.Format(b.CostFiat, money.FiatDecimals),
		"margin_bps":      b.MarginBps,
		"regular_rate":    money.Format(b.RegularRate, money.TokenDecimals),
		"discounted_rate": money.Format(b.DiscountedRate, money.TokenDecimals),
		"total_stock":     b.TotalStock,
		"remaining_stock": b.RemainingStock,
		"code":            b.Code,
		"lab_ref":         b.LabRef,
		"active":          b.Active,
		"created_at":      b.CreatedAt,
		"deactivated_at":  b.DeactivatedAt,
	}
}

func (a *API) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := a.inventory.Batches(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchJSON(b))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) getBatch(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	b, err := a.inventory.Batch(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, batchJSON(b))
}

func (a *API) createBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductType int64  `json:"product_type"`
		CostFiat    string `json:"cost_fiat"`
		MarginBps   *int64 `json:"margin_bps"`
		TotalStock  int64  `json:"total_stock"`
		Code        string `json:"code"`
		LabRef      string `json:"lab_ref"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	cost, err := parseAmount(req.CostFiat, money.FiatDecimals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.inventory.CreateBatch(r.Context(), actor(r), req.ProductType, cost, req.MarginBps, req.TotalStock, req.Code, req.LabRef)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]int64{"batch_id": id})
}

func (a *API) updateBatchPricing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID   int64   `json:"batch_id"`
		CostFiat  *string `json:"cost_fiat"`
		MarginBps *int64  `json:"margin_bps"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	var newCost *big.Int
	if req.CostFiat != nil {
		v, err := parseAmount(*req.CostFiat, money.FiatDecimals)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		newCost = v
	}
	if err := a.inventory.UpdateBatchPricing(r.Context(), actor(r), req.BatchID, newCost, req.MarginBps); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID  int64 `json:"batch_id"`
		NewTotal int64 `json:"new_total"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.inventory.AdjustStock(r.Context(), actor(r), req.BatchID, req.NewTotal); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}

func (a *API) recordRedemption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account    string `json:"account"`
		BatchID    int64  `json:"batch_id"`
		Quantity   int64  `json:"quantity"`
		Discounted bool   `json:"discounted"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	tokens, err := a.inventory.RecordRedemption(r.Context(), actor(r), req.Account, req.BatchID, req.Quantity, req.Discounted)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{
		"tokens_required": tokens.String(),
	})
}

func (a *API) recalculateRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartID int64 `json:"start_id"`
		EndID   int64 `json:"end_id"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.inventory.RecalculateRates(r.Context(), actor(r), req.StartID, req.EndID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "recalculated"})
}

func (a *API) reactivateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID int64 `json:"batch_id"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.inventory.Reactivate(r.Context(), actor(r), req.BatchID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "reactivated"})
}

func (a *API) deactivateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID int64 `json:"batch_id"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.inventory.Deactivate(r.Context(), actor(r), req.BatchID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
