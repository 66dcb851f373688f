package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakevault/core/events"
	"stakevault/core/state"
	"stakevault/core/types"
	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/native/vault"
	"stakevault/observability"
	telemetry "stakevault/observability/otel"
	"stakevault/storage"
)

var (
	// DefaultVaultAddress is the contract the vault runs under.
	DefaultVaultAddress = crypto.ContractFromSeed("stakevault")
	// DefaultTokenAddress is the contract address of the debt token.
	DefaultTokenAddress = crypto.ContractFromSeed("stakevault-token")
	// DefaultStakingPool holds bonded funds of every delegator.
	DefaultStakingPool = crypto.ContractFromSeed("staking-pool")
)

// Options configures a Runtime. Zero values select the defaults.
type Options struct {
	VaultAddress  crypto.Address
	TokenAddress  crypto.Address
	TokenSymbol   string
	StakingPool   crypto.Address
	VaultParams   vault.Params
	StakingParams staking.Params
	Logger        *slog.Logger
	// Now is the wall clock. The stored clock offset is added on top.
	Now func() time.Time
}

// Runtime hosts the vault, its debt token and the local staking ledger over
// one database. Operations are serialised; each runs inside a state.Tx whose
// writes and events are published only when the operation succeeds.
type Runtime struct {
	mu sync.Mutex

	db            storage.Database
	vaultAddr     crypto.Address
	tokenAddr     crypto.Address
	symbol        string
	pool          crypto.Address
	vaultParams   vault.Params
	stakingParams staking.Params
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	subMu       sync.RWMutex
	subscribers events.Fanout
}

// NewRuntime builds a runtime over db. The caller keeps ownership of db.
func NewRuntime(db storage.Database, opts Options) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	r := &Runtime{
		db:            db,
		vaultAddr:     opts.VaultAddress,
		tokenAddr:     opts.TokenAddress,
		symbol:        strings.TrimSpace(opts.TokenSymbol),
		pool:          opts.StakingPool,
		vaultParams:   opts.VaultParams,
		stakingParams: opts.StakingParams,
		logger:        opts.Logger,
		tracer:        telemetry.Tracer(),
		now:           opts.Now,
	}
	if r.vaultAddr.IsZero() {
		r.vaultAddr = DefaultVaultAddress
	}
	if r.tokenAddr.IsZero() {
		r.tokenAddr = DefaultTokenAddress
	}
	if r.symbol == "" {
		r.symbol = token.DefaultSymbol
	}
	if r.pool.IsZero() {
		r.pool = DefaultStakingPool
	}
	if r.vaultParams.MaxLTVBps == 0 {
		r.vaultParams = vault.DefaultParams()
	}
	if err := r.vaultParams.Validate(); err != nil {
		return nil, err
	}
	if r.stakingParams.MinDelegation == nil {
		r.stakingParams = staking.DefaultParams()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Subscribe registers an emitter that receives every committed event.
func (r *Runtime) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, emitter)
	r.subMu.Unlock()
}

func (r *Runtime) publish(pending []events.Event) {
	r.subMu.RLock()
	subs := append(events.Fanout(nil), r.subscribers...)
	r.subMu.RUnlock()
	for _, evt := range pending {
		observability.Events().Record(evt.EventType())
		subs.Emit(evt)
	}
}

// VaultAddress returns the vault contract address.
func (r *Runtime) VaultAddress() crypto.Address { return r.vaultAddr }

// TokenAddress returns the debt token contract address.
func (r *Runtime) TokenAddress() crypto.Address { return r.tokenAddr }

// StakingPool returns the bonded pool account.
func (r *Runtime) StakingPool() crypto.Address { return r.pool }

// engines is one operation's view of the three modules, all bound to the same
// state manager and event sink.
type engines struct {
	state   *state.Manager
	vault   *vault.Engine
	token   *token.Engine
	staking *staking.Engine
	now     time.Time
}

func (r *Runtime) bind(manager *state.Manager, emitter events.Emitter) (*engines, error) {
	offset, err := manager.ClockOffset()
	if err != nil {
		return nil, fmt.Errorf("runtime: read clock: %w", err)
	}
	now := r.now().Add(offset)
	nowFn := func() int64 { return now.Unix() }

	tok := token.NewEngine(r.symbol)
	tok.SetState(manager)
	tok.SetEmitter(emitter)

	stake := staking.NewEngine(r.pool, r.stakingParams)
	stake.SetState(manager)
	stake.SetEmitter(emitter)
	stake.SetNowFunc(nowFn)

	v := vault.NewEngine(r.vaultAddr, r.vaultParams)
	v.SetState(manager)
	v.SetToken(tok)
	v.SetStaking(stake)
	v.SetEmitter(emitter)
	v.SetNowFunc(nowFn)

	return &engines{state: manager, vault: v, token: tok, staking: stake, now: now}, nil
}

// execute runs fn inside a fresh transaction. On success the writes are
// committed and the buffered events published; on failure both are dropped.
func (r *Runtime) execute(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(*engines) (*uint256.Int, error)) (*Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := r.tracer.Start(ctx, "vault."+op, trace.WithAttributes(append(attrs, attribute.String("vault.op", op))...))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	tx := state.Begin(r.db)
	buffer := new(events.Buffer)

	fail := func(err error) (*Receipt, error) {
		tx.Discard()
		buffer.Reset()
		code := errorLabel(err)
		observability.Vault().Observe(op, code, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		r.logger.Warn("vault operation failed",
			slog.String("op", op),
			slog.String("code", code),
			slog.Bool("retryable", vault.Retryable(err)),
			slog.String("error", err.Error()))
		return nil, err
	}

	bound, err := r.bind(tx.Manager(), buffer)
	if err != nil {
		return fail(err)
	}
	amount, err := fn(bound)
	if err != nil {
		return fail(err)
	}
	pending := tx.Pending()
	if err := tx.Commit(); err != nil {
		buffer.Reset()
		return fail(err)
	}

	committed := buffer.Flush(nil)
	r.publish(committed)
	r.publishTotals()
	observability.Vault().Observe(op, "", time.Since(started))

	receipt := &Receipt{
		ID:     uuid.New(),
		Op:     op,
		Time:   bound.now,
		Amount: amount,
		Events: make([]*types.Event, 0, len(committed)),
	}
	for _, evt := range committed {
		receipt.Events = append(receipt.Events, events.Record(evt))
	}
	span.SetAttributes(
		attribute.String("vault.receipt", receipt.ID.String()),
		attribute.Int("vault.events", len(receipt.Events)),
	)
	r.logger.Info("vault operation committed",
		slog.String("op", op),
		slog.String("receipt", receipt.ID.String()),
		slog.Int("writes", pending),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

// view runs fn against the committed state inside a transaction that is
// always discarded.
func (r *Runtime) view(fn func(*engines) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := state.Begin(r.db)
	defer tx.Discard()
	bound, err := r.bind(tx.Manager(), events.NoopEmitter{})
	if err != nil {
		return err
	}
	return fn(bound)
}

func (r *Runtime) publishTotals() {
	globals, err := state.NewManager(r.db).GetGlobals()
	if err != nil || globals == nil {
		return
	}
	observability.Vault().SetTotals(observability.LedgerTotals{
		Collateral: globals.TotalCollateral,
		Debt:       globals.TotalDebt,
		Delegated:  globals.TotalDelegated,
		Pending:    globals.PendingToDelegate,
	})
}

func errorLabel(err error) string {
	if err == nil {
		return ""
	}
	if code := vault.Code(err); code != vault.CodeNone {
		return code.String()
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	case errors.Is(err, token.ErrNotMinter):
		return "TokenNotMinter"
	case errors.Is(err, staking.ErrDelegationTooSmall):
		return "DelegationTooSmall"
	}
	return "Internal"
}
