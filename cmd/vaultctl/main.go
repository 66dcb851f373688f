package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stakevault/config"
	"stakevault/core"
	"stakevault/core/genesis"
	"stakevault/crypto"
	"stakevault/native/vault"
	"stakevault/observability/logging"
	"stakevault/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// session is one command invocation's view of the ledger.
type session struct {
	cfg     *config.Config
	cfgPath string
	rt      *core.Runtime
	db      storage.Database
	stdout  io.Writer
	stderr  io.Writer
}

func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

type command struct {
	usage string
	run   func(s *session, args []string) error
}

var commands = map[string]command{
	"init":           {"init", runInit},
	"deposit":        {"deposit --from ADDR --amount COINS", runDeposit},
	"add-collateral": {"add-collateral --from ADDR --amount COINS", runAddCollateral},
	"borrow":         {"borrow --from ADDR --amount TOKENS", runBorrow},
	"repay":          {"repay --from ADDR --amount TOKENS", runRepay},
	"repay-all":      {"repay-all --from ADDR", runRepayAll},
	"approve":        {"approve --from ADDR --amount TOKENS [--spender ADDR]", runApprove},
	"transfer":       {"transfer --from ADDR --to ADDR --amount TOKENS", runTransfer},
	"withdraw":       {"withdraw --from ADDR --amount COINS", runWithdraw},
	"withdraw-max":   {"withdraw-max --from ADDR", runWithdrawMax},
	"finalize":       {"finalize --from ADDR", runFinalize},
	"force-delegate": {"force-delegate --from OWNER", runForceDelegate},
	"pause":          {"pause --from OWNER", runPause},
	"unpause":        {"unpause --from OWNER", runUnpause},
	"set-validator":  {"set-validator --from OWNER --key HEX", runSetValidator},
	"settle":         {"settle", runSettle},
	"advance":        {"advance --by DURATION", runAdvance},
	"fund":           {"fund --from OWNER --to ADDR --amount COINS", runFund},
	"account":        {"account --addr ADDR", runAccount},
	"summary":        {"summary", runSummary},
	"validators":     {"validators", runValidators},
	"positions":      {"positions", runPositions},
	"keygen":         {"keygen [--import HEX]", runKeygen},
}

// offline commands never open the config or the ledger.
var offline = map[string]bool{"keygen": true}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vaultctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "./config.toml", "path to the node configuration")
	fs.Usage = func() { fmt.Fprintln(stderr, usage()) }
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}

	s := &session{stdout: stdout, stderr: stderr}
	if !offline[rest[0]] {
		var err error
		if s, err = openSession(*cfgPath, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	defer s.Close()

	if err := cmd.run(s, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 1
		}
		if errors.Is(err, errUsage) {
			if err != errUsage {
				fmt.Fprintf(stderr, "Error: %s\n", strings.TrimSuffix(err.Error(), ": usage"))
			}
			fmt.Fprintf(stderr, "Usage: vaultctl %s\n", cmd.usage)
			return 1
		}
		reportError(stderr, err)
		return 1
	}
	return 0
}

func usage() string {
	names := []string{
		"init", "deposit", "add-collateral", "borrow", "repay", "repay-all", "approve", "transfer",
		"withdraw", "withdraw-max", "finalize", "force-delegate", "pause", "unpause", "set-validator",
		"settle", "advance", "fund", "account", "summary", "validators", "positions", "keygen",
	}
	var b strings.Builder
	b.WriteString("Usage: vaultctl [--config PATH] <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", commands[name].usage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func openSession(cfgPath string, stdout, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var logger *slog.Logger
	if strings.TrimSpace(cfg.Log.File) != "" {
		logger = logging.SetupWith(logging.Options{
			Service:   "vaultctl",
			Env:       cfg.Environment,
			Level:     cfg.Log.Level,
			File:      cfg.Log.File,
			MaxSizeMB: cfg.Log.MaxSizeMB,
		})
	} else {
		// Without a log file only failures reach the terminal.
		logger = slog.New(logging.NewHandler(stderr, slog.LevelError))
	}
	vaultParams, err := cfg.VaultParams()
	if err != nil {
		return nil, err
	}
	stakingParams, err := cfg.StakingParams()
	if err != nil {
		return nil, err
	}
	spec, err := cfg.GenesisSpec(filepath.Dir(cfgPath))
	if err != nil {
		return nil, err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	rt, err := core.NewRuntime(db, core.Options{
		TokenSymbol:   spec.Token.Symbol,
		VaultParams:   vaultParams,
		StakingParams: stakingParams,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{cfg: cfg, cfgPath: cfgPath, rt: rt, db: db, stdout: stdout, stderr: stderr}, nil
}

var errUsage = errors.New("usage")

func reportError(w io.Writer, err error) {
	code := vault.Code(err)
	if code == vault.CodeNone {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	suffix := ""
	if vault.Retryable(err) {
		suffix = ", retryable"
	}
	fmt.Fprintf(w, "Error: %v (code %d %s%s)\n", err, uint16(code), code, suffix)
}

func parseAddress(raw, flagName string) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required: %w", flagName, errUsage)
	}
	addr, err := genesis.ResolveAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}
