package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riskd/sentinel-risk-daemon/internal/selfhealth"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.HealthCheck(r.Context()); err != nil {
		http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type systemStatusResponse struct {
	UserStreamHealth   string              `json:"user_stream_health"`
	MarketStreamHealth string              `json:"market_stream_health"`
	Accounts           []int64             `json:"accounts"`
	Process            selfhealth.Snapshot `json:"process"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		UserStreamHealth:   string(s.cfg.Stream.UserHealth()),
		MarketStreamHealth: string(s.cfg.Stream.MarketHealth()),
		Accounts:           s.cfg.Accounts,
		Process:            s.cfg.Health.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleDiagnostics exposes the brokerage client's rate-limit, error
// classifier, and token manager observability surfaces (§12.1-§12.3).
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.cfg.Diagnostics == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	_ = json.NewEncoder(w).Encode(s.cfg.Diagnostics.Diagnostics())
}

func (s *Server) parseAccountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return 0, false
	}
	return accountID, true
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.parseAccountID(w, r)
	if !ok {
		return
	}
	positions := s.cfg.State.OpenPositions(accountID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(positions)
}

type pnlResponse struct {
	AccountID       int64              `json:"account_id"`
	RealizedPnL     float64            `json:"realized_pnl"`
	UnrealizedPnL   float64            `json:"unrealized_pnl"`
	PerPositionPnL  map[string]float64 `json:"per_position_unrealized_pnl"`
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.parseAccountID(w, r)
	if !ok {
		return
	}
	resp := pnlResponse{
		AccountID:      accountID,
		RealizedPnL:    s.cfg.PnL.RealizedPnL(accountID),
		UnrealizedPnL:  s.cfg.PnL.CalculateUnrealized(accountID),
		PerPositionPnL: s.cfg.PnL.CalculatePerPosition(accountID),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type lockoutResponse struct {
	AccountID int64  `json:"account_id"`
	LockedOut bool   `json:"locked_out"`
	Reason    string `json:"reason,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

func (s *Server) handleLockout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.parseAccountID(w, r)
	if !ok {
		return
	}
	resp := lockoutResponse{AccountID: accountID}
	if l, found := s.cfg.Lockouts.AccountLockout(accountID); found {
		resp.LockedOut = true
		resp.Reason = l.Reason
		resp.Until = l.Until
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEnforcementLog(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.parseAccountID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.cfg.Store.RecentEnforcementLog(accountID, limit)
	if err != nil {
		http.Error(w, "failed to load enforcement log", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
