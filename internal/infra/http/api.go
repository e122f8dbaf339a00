package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/inventory"
	"github.com/perkline/perkline/internal/domain/membership"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/pricing"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/domain/token"
	"github.com/perkline/perkline/internal/domain/treasury"
)

// API is the administrative transport over the ledgers. The acting account
// is taken from the X-Actor header; authentication itself is the
// environment's job, authorization is the ledgers'.
type API struct {
	log        *slog.Logger
	pricing    *pricing.Engine
	inventory  *inventory.Ledger
	treasury   *treasury.Ledger
	membership *membership.Registry
	tokens     *token.Ledger
	roles      *rbac.Repo
	audit      *audit.Repo
}

func NewAPI(log *slog.Logger, eng *pricing.Engine, inv *inventory.Ledger, tres *treasury.Ledger, reg *membership.Registry, tok *token.Ledger, roles *rbac.Repo, auditRepo *audit.Repo) *API {
	return &API{
		log:        log,
		pricing:    eng,
		inventory:  inv,
		treasury:   tres,
		membership: reg,
		tokens:     tok,
		roles:      roles,
		audit:      auditRepo,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	a.registerPricing(mux)
	a.registerInventory(mux)
	a.registerTreasury(mux)
	a.registerMembership(mux)
	a.registerToken(mux)

	mux.HandleFunc("POST /v1/roles/grant", a.grantRole)
	mux.HandleFunc("POST /v1/roles/revoke", a.revokeRole)
	mux.HandleFunc("GET /v1/roles", a.listRoles)
	mux.HandleFunc("GET /v1/audit", a.listAudit)
	mux.HandleFunc("GET /v1/reports/statement.xlsx", a.statementReport)
}

func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, r, errBadRequest)
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errBadRequest = errors.New("bad request")

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rbac.ErrUnauthorized),
		errors.Is(err, treasury.ErrCallerNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, errBadRequest),
		errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidMargin),
		errors.Is(err, pricing.ErrOutOfBounds),
		errors.Is(err, inventory.ErrInvalidInput),
		errors.Is(err, inventory.ErrMarginTooHigh),
		errors.Is(err, inventory.ErrInvalidRange),
		errors.Is(err, treasury.ErrInvalidInput),
		errors.Is(err, membership.ErrInvalidInput),
		errors.Is(err, token.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, pricing.ErrUnknownProduct),
		errors.Is(err, inventory.ErrInvalidBatch),
		errors.Is(err, membership.ErrNotFound),
		errors.Is(err, token.ErrNotFound),
		errors.Is(err, treasury.ErrUnknownBucket):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrNotActive),
		errors.Is(err, inventory.ErrAlreadyActive),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrStockBelowRedeemed),
		errors.Is(err, treasury.ErrExceedsAllocation),
		errors.Is(err, treasury.ErrInsufficientBalance),
		errors.Is(err, membership.ErrNotEntitled),
		errors.Is(err, token.ErrNotActive),
		errors.Is(err, token.ErrInsufficientStock),
		errors.Is(err, token.ErrInsufficientBalance):
		status = http.StatusConflict
	default:
		a.log.Error("request failed", "path", r.URL.Path, "actor", actor(r), "err", err)
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parseAmount reads a non-negative decimal string at the given scale; any
// failure maps to a 400.
func parseAmount(s string, decimals int) (*big.Int, error) {
	v, err := money.Parse(s, decimals)
	if err != nil || v.Sign() < 0 {
		return nil, errBadRequest
	}
	return v, nil
}

/* RBAC + audit */

func (a *API) grantRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Role    string `json:"role"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.roles.Require(r.Context(), actor(r), rbac.RoleAdmin); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Account == "" || !rbac.ValidRole(rbac.Role(req.Role)) {
		a.writeError(w, r, errBadRequest)
		return
	}
	if err := a.roles.Grant(r.Context(), req.Account, rbac.Role(req.Role), actor(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (a *API) revokeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Role    string `json:"role"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.roles.Require(r.Context(), actor(r), rbac.RoleAdmin); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.roles.Revoke(r.Context(), req.Account, rbac.Role(req.Role)); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	roles, err := a.roles.Roles(r.Context(), account)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"account": account, "roles": roles})
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := a.audit.ListByEntity(r.Context(), q.Get("entity"), q.Get("id"), 100)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, events)
}
