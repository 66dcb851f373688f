package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakevault/core"
	"stakevault/crypto"
	"stakevault/native/oracle"
	"stakevault/native/staking"
	"stakevault/native/vault"
	"stakevault/services/indexer"
)

// Ledger is the read surface of the runtime served over HTTP.
type Ledger interface {
	Summary() (*core.VaultSummary, error)
	Account(addr crypto.Address) (*core.Account, error)
	Validators() ([]*staking.Validator, error)
}

// EventStore answers event history queries.
type EventStore interface {
	Find(q indexer.Query) ([]indexer.EventRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger Ledger
	Events EventStore
	Oracle oracle.PriceOracle
	Logger *slog.Logger
}

// Server exposes read-only vault state and the keeper's metrics.
type Server struct {
	ledger Ledger
	events EventStore
	oracle oracle.PriceOracle
	logger *slog.Logger
	router http.Handler
}

// New constructs the HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{ledger: cfg.Ledger, events: cfg.Events, oracle: cfg.Oracle, logger: logger}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(api chi.Router) {
		api.Get("/summary", s.GetSummary)
		api.Get("/validators", s.ListValidators)
		api.Get("/accounts/{address}", s.GetAccount)
		api.Get("/events", s.ListEvents)
	})
	return r
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type summaryResponse struct {
	VaultAddress      string        `json:"vaultAddress"`
	TokenAddress      string        `json:"tokenAddress"`
	Owner             string        `json:"owner"`
	Paused            bool          `json:"paused"`
	ValidatorIdentity string        `json:"validatorIdentity,omitempty"`
	TotalCollateral   string        `json:"totalCollateral"`
	TotalDebt         string        `json:"totalDebt"`
	TotalDelegated    string        `json:"totalDelegated"`
	PendingToDelegate string        `json:"pendingToDelegate"`
	PendingWithdraw   string        `json:"pendingWithdraw"`
	LiquidBalance     string        `json:"liquidBalance"`
	TokenSupply       string        `json:"tokenSupply"`
	CollateralUSD     string        `json:"collateralUsd,omitempty"`
	Unbonding         []unbondEntry `json:"unbonding"`
	Clock             time.Time     `json:"clock"`
}

type unbondEntry struct {
	ID          uint64    `json:"id"`
	Validator   string    `json:"validator"`
	Amount      string    `json:"amount"`
	ReleaseTime time.Time `json:"releaseTime"`
}

// GetSummary renders the vault globals.
func (s *Server) GetSummary(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.ledger.Summary()
	if err != nil {
		s.fail(w, err)
		return
	}
	g := summary.Globals
	resp := summaryResponse{
		VaultAddress:      summary.VaultAddress.String(),
		TokenAddress:      summary.TokenAddress.String(),
		Owner:             g.Owner.String(),
		Paused:            g.Paused,
		ValidatorIdentity: g.ValidatorIdentity,
		TotalCollateral:   vault.FormatNative(g.TotalCollateral),
		TotalDebt:         vault.FormatFixedPoint(g.TotalDebt),
		TotalDelegated:    vault.FormatNative(g.TotalDelegated),
		PendingToDelegate: vault.FormatNative(g.PendingToDelegate),
		PendingWithdraw:   vault.FormatNative(g.TotalPendingWithdraw),
		LiquidBalance:     vault.FormatNative(summary.LiquidBalance),
		TokenSupply:       vault.FormatFixedPoint(summary.TokenSupply),
		Unbonding:         make([]unbondEntry, 0, len(summary.Unbonding)),
		Clock:             time.Unix(summary.ClockUnix, 0).UTC(),
	}
	if s.oracle != nil {
		if usd, err := oracle.Value(s.oracle, oracle.DefaultFeedID, g.TotalCollateral, vault.NativeDecimals); err == nil {
			resp.CollateralUSD = usd.StringFixed(2)
		}
	}
	for _, u := range summary.Unbonding {
		resp.Unbonding = append(resp.Unbonding, unbondEntry{
			ID:          u.ID,
			Validator:   u.Validator,
			Amount:      vault.FormatNative(u.Amount),
			ReleaseTime: time.Unix(int64(u.ReleaseTime), 0).UTC(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type validatorEntry struct {
	Key     string `json:"key"`
	Moniker string `json:"moniker,omitempty"`
}

// ListValidators renders the staking registry.
func (s *Server) ListValidators(w http.ResponseWriter, _ *http.Request) {
	vals, err := s.ledger.Validators()
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]validatorEntry, 0, len(vals))
	for _, v := range vals {
		out = append(out, validatorEntry{Key: v.Key, Moniker: v.Moniker})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type accountResponse struct {
	Address         string `json:"address"`
	Native          string `json:"native"`
	TokenBalance    string `json:"tokenBalance"`
	VaultAllowance  string `json:"vaultAllowance"`
	Status          string `json:"status"`
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	PendingWithdraw string `json:"pendingWithdraw"`
	LtvBps          uint64 `json:"ltvBps"`
	HealthFactorBps uint64 `json:"healthFactorBps"`
	MaxWithdraw     string `json:"maxWithdraw"`
}

// GetAccount renders balances and the position of one address.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	account, err := s.ledger.Account(addr)
	if err != nil {
		s.fail(w, err)
		return
	}
	p := account.Position
	s.writeJSON(w, http.StatusOK, accountResponse{
		Address:         account.Address.String(),
		Native:          vault.FormatNative(account.Native),
		TokenBalance:    vault.FormatFixedPoint(account.TokenBalance),
		VaultAllowance:  vault.FormatFixedPoint(account.VaultAllowance),
		Status:          p.Status.String(),
		Collateral:      vault.FormatNative(p.CollateralNative),
		Debt:            vault.FormatFixedPoint(p.DebtFixed),
		PendingWithdraw: vault.FormatNative(p.PendingWithdrawNative),
		LtvBps:          p.LtvBps,
		HealthFactorBps: p.HealthFactorBps,
		MaxWithdraw:     vault.FormatNative(account.MaxWithdraw),
	})
}

type eventEntry struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Module     string            `json:"module"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// ListEvents pages through the indexed event history. Supported query
// parameters are type, subject, after and limit.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event index disabled", http.StatusServiceUnavailable)
		return
	}
	query := indexer.Query{
		Type:    strings.TrimSpace(r.URL.Query().Get("type")),
		Subject: strings.TrimSpace(r.URL.Query().Get("subject")),
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		query.After = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		query.Limit = limit
	}
	records, err := s.events.Find(query)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]eventEntry, 0, len(records))
	for _, rec := range records {
		decoded, err := rec.Decode()
		if err != nil {
			s.fail(w, err)
			return
		}
		out = append(out, eventEntry{
			Seq:        rec.Seq,
			Type:       rec.Type,
			Module:     rec.Module,
			Subject:    rec.Subject,
			Attributes: decoded.Attributes,
			CreatedAt:  rec.CreatedAt.UTC(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", slog.String("error", err.Error()))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
