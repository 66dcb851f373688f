package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core"
	"stakevault/crypto"
	"stakevault/native/vault"
)

// opFlags are the flags shared by the state-changing commands.
type opFlags struct {
	fs     *flag.FlagSet
	from   string
	amount string
}

func newOpFlags(s *session, name string, withAmount bool) *opFlags {
	f := &opFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(s.stderr)
	f.fs.StringVar(&f.from, "from", "", "caller address or seed:name")
	if withAmount {
		f.fs.StringVar(&f.amount, "amount", "", "amount in whole units")
	}
	return f
}

func (f *opFlags) parse(args []string) (crypto.Address, error) {
	if err := f.fs.Parse(args); err != nil {
		return crypto.Address{}, err
	}
	if f.fs.NArg() > 0 {
		return crypto.Address{}, fmt.Errorf("unexpected positional arguments: %w", errUsage)
	}
	return parseAddress(f.from, "from")
}

func (f *opFlags) native() (*uint256.Int, error) {
	if f.amount == "" {
		return nil, fmt.Errorf("--amount is required: %w", errUsage)
	}
	return vault.ParseNative(f.amount)
}

func (f *opFlags) tokens() (*uint256.Int, error) {
	if f.amount == "" {
		return nil, fmt.Errorf("--amount is required: %w", errUsage)
	}
	return vault.ParseFixedPoint(f.amount)
}

type nativeOp func(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*core.Receipt, error)
type callerOp func(ctx context.Context, caller crypto.Address) (*core.Receipt, error)

func runNativeOp(s *session, name string, args []string, op nativeOp) error {
	f := newOpFlags(s, name, true)
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	amount, err := f.native()
	if err != nil {
		return err
	}
	receipt, err := op(context.Background(), caller, amount)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, vault.FormatNative)
	return nil
}

func runTokenOp(s *session, name string, args []string, op nativeOp) error {
	f := newOpFlags(s, name, true)
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	amount, err := f.tokens()
	if err != nil {
		return err
	}
	receipt, err := op(context.Background(), caller, amount)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, vault.FormatFixedPoint)
	return nil
}

func runCallerOp(s *session, name string, args []string, op callerOp, format func(*uint256.Int) string) error {
	f := newOpFlags(s, name, false)
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	receipt, err := op(context.Background(), caller)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, format)
	return nil
}

func runInit(s *session, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	installed, err := s.rt.Installed()
	if err != nil {
		return err
	}
	if installed {
		fmt.Fprintln(s.stdout, "Ledger already initialised")
		return nil
	}
	spec, err := s.cfg.GenesisSpec(dirOf(s.cfgPath))
	if err != nil {
		return err
	}
	resolved, err := spec.Resolve()
	if err != nil {
		return err
	}
	receipt, err := s.rt.Install(context.Background(), resolved)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.stdout, "Initialised ledger in %s\n", s.cfg.DataDir)
	fmt.Fprintf(s.stdout, "  Owner:        %s\n", resolved.Owner)
	fmt.Fprintf(s.stdout, "  Vault:        %s\n", s.rt.VaultAddress())
	fmt.Fprintf(s.stdout, "  Token:        %s (%s)\n", s.rt.TokenAddress(), resolved.TokenSymbol)
	fmt.Fprintf(s.stdout, "  Validators:   %d\n", len(resolved.Validators))
	fmt.Fprintf(s.stdout, "  Allocated:    %s\n", vault.FormatNative(receipt.Amount))
	return nil
}

func runDeposit(s *session, args []string) error {
	return runNativeOp(s, "deposit", args, s.rt.Deposit)
}

func runAddCollateral(s *session, args []string) error {
	return runNativeOp(s, "add-collateral", args, s.rt.AddCollateral)
}

func runBorrow(s *session, args []string) error {
	return runTokenOp(s, "borrow", args, s.rt.Borrow)
}

func runRepay(s *session, args []string) error {
	return runTokenOp(s, "repay", args, s.rt.Repay)
}

func runRepayAll(s *session, args []string) error {
	return runCallerOp(s, "repay-all", args, s.rt.RepayAll, vault.FormatFixedPoint)
}

func runWithdraw(s *session, args []string) error {
	return runNativeOp(s, "withdraw", args, s.rt.RequestWithdraw)
}

func runWithdrawMax(s *session, args []string) error {
	return runCallerOp(s, "withdraw-max", args, s.rt.WithdrawMax, vault.FormatNative)
}

func runFinalize(s *session, args []string) error {
	return runCallerOp(s, "finalize", args, s.rt.FinalizeWithdraw, vault.FormatNative)
}

func runForceDelegate(s *session, args []string) error {
	return runCallerOp(s, "force-delegate", args, s.rt.ForceDelegate, vault.FormatNative)
}

func runPause(s *session, args []string) error {
	return runCallerOp(s, "pause", args, s.rt.Pause, nil)
}

func runUnpause(s *session, args []string) error {
	return runCallerOp(s, "unpause", args, s.rt.Unpause, nil)
}

func runApprove(s *session, args []string) error {
	f := newOpFlags(s, "approve", true)
	var spender string
	f.fs.StringVar(&spender, "spender", "", "spender address, defaults to the vault")
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	amount, err := f.tokens()
	if err != nil {
		return err
	}
	target := s.rt.VaultAddress()
	if spender != "" {
		if target, err = parseAddress(spender, "spender"); err != nil {
			return err
		}
	}
	receipt, err := s.rt.Approve(context.Background(), caller, target, amount)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, nil)
	return nil
}

func runTransfer(s *session, args []string) error {
	f := newOpFlags(s, "transfer", true)
	var to string
	f.fs.StringVar(&to, "to", "", "recipient address or seed:name")
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	recipient, err := parseAddress(to, "to")
	if err != nil {
		return err
	}
	amount, err := f.tokens()
	if err != nil {
		return err
	}
	receipt, err := s.rt.Transfer(context.Background(), caller, recipient, amount)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, nil)
	return nil
}

func runSetValidator(s *session, args []string) error {
	f := newOpFlags(s, "set-validator", false)
	var key string
	f.fs.StringVar(&key, "key", "", "validator public key in hex; empty clears the identity")
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	receipt, err := s.rt.SetValidatorIdentity(context.Background(), caller, key)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, nil)
	return nil
}

func runFund(s *session, args []string) error {
	f := newOpFlags(s, "fund", true)
	var to string
	f.fs.StringVar(&to, "to", "", "recipient address or seed:name")
	caller, err := f.parse(args)
	if err != nil {
		return err
	}
	recipient, err := parseAddress(to, "to")
	if err != nil {
		return err
	}
	amount, err := f.native()
	if err != nil {
		return err
	}
	receipt, err := s.rt.Fund(context.Background(), caller, recipient, amount)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, vault.FormatNative)
	return nil
}

func runSettle(s *session, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	receipt, err := s.rt.Settle(context.Background())
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, func(n *uint256.Int) string { return fmt.Sprintf("%s entries", n.Dec()) })
	return nil
}

func runAdvance(s *session, args []string) error {
	fs := flag.NewFlagSet("advance", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	by := fs.Duration("by", 0, "how far to move the ledger clock, e.g. 14h")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *by <= 0 {
		return fmt.Errorf("--by must be positive: %w", errUsage)
	}
	receipt, err := s.rt.AdvanceClock(context.Background(), *by)
	if err != nil {
		return err
	}
	printReceipt(s.stdout, receipt, func(n *uint256.Int) string {
		return fmt.Sprintf("offset %s", time.Duration(n.Uint64())*time.Second)
	})
	return nil
}
