package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stakevault/core"
	"stakevault/crypto"
	"stakevault/native/vault"
	"stakevault/observability/metrics"
)

const (
	JobDelegate = "force_delegate"
	JobSettle   = "settle_unbonding"
)

// Vault is the runtime surface the keeper drives.
type Vault interface {
	ForceDelegate(ctx context.Context, caller crypto.Address) (*core.Receipt, error)
	Settle(ctx context.Context) (*core.Receipt, error)
}

// Config selects the schedules. Specs use the six-field cron syntax with
// seconds; an empty spec disables the job.
type Config struct {
	Owner        crypto.Address
	DelegateSpec string
	SettleSpec   string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Keeper runs the owner-side maintenance of the vault on a schedule: it flushes
// the delegation batch and releases matured unbonding entries so pending
// withdrawals can finalize.
type Keeper struct {
	cron    *cron.Cron
	vault   Vault
	owner   crypto.Address
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.KeeperMetrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates cfg and registers the jobs without starting them.
func New(v Vault, cfg Config) (*Keeper, error) {
	if v == nil {
		return nil, fmt.Errorf("keeper: vault required")
	}
	if cfg.Owner.IsZero() {
		return nil, fmt.Errorf("keeper: owner required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	k := &Keeper{
		cron:    cron.New(cron.WithSeconds()),
		vault:   v,
		owner:   cfg.Owner,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "keeper")),
		metrics: metrics.Keeper(),
		ctx:     ctx,
		cancel:  cancel,
	}
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobDelegate, cfg.DelegateSpec, k.RunDelegate},
		{JobSettle, cfg.SettleSpec, k.RunSettle},
	}
	for _, job := range jobs {
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			continue
		}
		job := job
		if _, err := k.cron.AddFunc(spec, func() { k.runJob(job.name, job.run) }); err != nil {
			cancel()
			return nil, fmt.Errorf("register %s job: %w", job.name, err)
		}
		k.metrics.InitJob(job.name)
	}
	return k, nil
}

// Jobs returns the number of scheduled jobs.
func (k *Keeper) Jobs() int { return len(k.cron.Entries()) }

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started", slog.Int("jobs", k.Jobs()))
}

// Stop halts scheduling, cancels in-flight jobs and waits for them to return.
func (k *Keeper) Stop() {
	k.cancel()
	<-k.cron.Stop().Done()
	k.logger.Info("keeper stopped")
}

func (k *Keeper) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(k.ctx, k.timeout)
	defer cancel()
	err := run(ctx)
	k.metrics.ObserveRun(name, err, time.Now())
	if err != nil {
		k.logger.Warn("keeper job failed",
			slog.String("job", name),
			slog.String("code", vault.Code(err).String()),
			slog.Any("error", err))
	}
}

// RunDelegate flushes the pending delegation batch as the owner. A batch below
// the minimum is a no-op, not an error.
func (k *Keeper) RunDelegate(ctx context.Context) error {
	receipt, err := k.vault.ForceDelegate(ctx, k.owner)
	if err != nil {
		return err
	}
	if receipt != nil && receipt.Amount != nil && !receipt.Amount.IsZero() {
		k.metrics.AddDelegated(receipt.Amount.Uint64())
		k.logger.Info("delegation batch flushed",
			slog.String("amount", vault.FormatNative(receipt.Amount)),
			slog.String("receipt", receipt.ID.String()))
	}
	return nil
}

// RunSettle releases matured unbonding entries.
func (k *Keeper) RunSettle(ctx context.Context) error {
	receipt, err := k.vault.Settle(ctx)
	if err != nil {
		return err
	}
	if receipt != nil && receipt.Amount != nil && !receipt.Amount.IsZero() {
		released := int(receipt.Amount.Uint64())
		k.metrics.AddReleased(released)
		k.logger.Info("unbonding released", slog.Int("entries", released))
	}
	return nil
}
