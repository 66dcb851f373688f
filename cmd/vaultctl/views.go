package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core"
	"stakevault/native/oracle"
	"stakevault/native/vault"
)

func dirOf(path string) string { return filepath.Dir(path) }

func printReceipt(w io.Writer, receipt *core.Receipt, format func(*uint256.Int) string) {
	fmt.Fprintf(w, "OK %s\n", receipt.Op)
	fmt.Fprintf(w, "  Receipt:  %s\n", receipt.ID)
	fmt.Fprintf(w, "  Time:     %s\n", receipt.Time.UTC().Format(time.RFC3339))
	if format != nil && receipt.Amount != nil {
		fmt.Fprintf(w, "  Amount:   %s\n", format(receipt.Amount))
	}
	for _, evt := range receipt.Events {
		parts := make([]string, 0, len(evt.Attributes))
		for _, key := range evt.Keys() {
			parts = append(parts, key+"="+evt.Attributes[key])
		}
		fmt.Fprintf(w, "  Event:    %s %s\n", evt.Type, strings.Join(parts, " "))
	}
}

func usd(amount *uint256.Int) string {
	value, err := oracle.Value(oracle.NewStaticOracle(nil), oracle.DefaultFeedID, amount, vault.NativeDecimals)
	if err != nil {
		return "n/a"
	}
	return "$" + value.StringFixed(2)
}

func runAccount(s *session, args []string) error {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	addrFlag := fs.String("addr", "", "address or seed:name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddress(*addrFlag, "addr")
	if err != nil {
		return err
	}
	account, err := s.rt.Account(addr)
	if err != nil {
		return err
	}
	p := account.Position
	fmt.Fprintf(s.stdout, "Account %s\n", account.Address)
	fmt.Fprintf(s.stdout, "  Hex:              0x%s\n", hex.EncodeToString(account.Address.Bytes()))
	fmt.Fprintf(s.stdout, "  Native balance:   %s\n", vault.FormatNative(account.Native))
	fmt.Fprintf(s.stdout, "  Token balance:    %s\n", vault.FormatFixedPoint(account.TokenBalance))
	fmt.Fprintf(s.stdout, "  Vault allowance:  %s\n", vault.FormatFixedPoint(account.VaultAllowance))
	fmt.Fprintf(s.stdout, "  Status:           %s\n", p.Status)
	fmt.Fprintf(s.stdout, "  Collateral:       %s (%s)\n", vault.FormatNative(p.CollateralNative), usd(p.CollateralNative))
	fmt.Fprintf(s.stdout, "  Debt:             %s\n", vault.FormatFixedPoint(p.DebtFixed))
	fmt.Fprintf(s.stdout, "  LTV:              %s\n", formatBps(p.LtvBps))
	fmt.Fprintf(s.stdout, "  Health factor:    %s\n", formatBps(p.HealthFactorBps))
	fmt.Fprintf(s.stdout, "  Pending withdraw: %s\n", vault.FormatNative(p.PendingWithdrawNative))
	fmt.Fprintf(s.stdout, "  Max withdraw:     %s\n", vault.FormatNative(account.MaxWithdraw))
	return nil
}

func formatBps(bps uint64) string {
	if bps == ^uint64(0) {
		return "max"
	}
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

func runSummary(s *session, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	summary, err := s.rt.Summary()
	if err != nil {
		return err
	}
	g := summary.Globals
	identity := g.ValidatorIdentity
	if identity == "" {
		identity = "(none)"
	}
	fmt.Fprintf(s.stdout, "Vault %s\n", summary.VaultAddress)
	fmt.Fprintf(s.stdout, "  Owner:               %s\n", g.Owner)
	fmt.Fprintf(s.stdout, "  Debt token:          %s\n", summary.TokenAddress)
	fmt.Fprintf(s.stdout, "  Paused:              %t\n", g.Paused)
	fmt.Fprintf(s.stdout, "  Validator:           %s\n", identity)
	fmt.Fprintf(s.stdout, "  Total collateral:    %s (%s)\n", vault.FormatNative(g.TotalCollateral), usd(g.TotalCollateral))
	fmt.Fprintf(s.stdout, "  Total debt:          %s\n", vault.FormatFixedPoint(g.TotalDebt))
	fmt.Fprintf(s.stdout, "  Pending delegation:  %s\n", vault.FormatNative(g.PendingToDelegate))
	fmt.Fprintf(s.stdout, "  Total delegated:     %s\n", vault.FormatNative(g.TotalDelegated))
	fmt.Fprintf(s.stdout, "  Pending withdrawals: %s\n", vault.FormatNative(g.TotalPendingWithdraw))
	fmt.Fprintf(s.stdout, "  Liquid balance:      %s\n", vault.FormatNative(summary.LiquidBalance))
	fmt.Fprintf(s.stdout, "  Token supply:        %s\n", vault.FormatFixedPoint(summary.TokenSupply))
	fmt.Fprintf(s.stdout, "  Clock:               %s\n", time.Unix(summary.ClockUnix, 0).UTC().Format(time.RFC3339))
	if len(summary.Unbonding) == 0 {
		return nil
	}
	fmt.Fprintln(s.stdout, "  Unbonding:")
	tw := tabwriter.NewWriter(s.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "    ID\tAMOUNT\tRELEASE")
	for _, u := range summary.Unbonding {
		fmt.Fprintf(tw, "    %d\t%s\t%s\n", u.ID, vault.FormatNative(u.Amount), time.Unix(int64(u.ReleaseTime), 0).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func runValidators(s *session, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	vals, err := s.rt.Validators()
	if err != nil {
		return err
	}
	if len(vals) == 0 {
		fmt.Fprintln(s.stdout, "No validators registered")
		return nil
	}
	tw := tabwriter.NewWriter(s.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tMONIKER\tACTIVE\tBONDED")
	for _, v := range vals {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", v.Key, v.Moniker, v.Active, vault.FormatNative(v.Bonded))
	}
	return tw.Flush()
}

func runPositions(s *session, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	positions, err := s.rt.Positions()
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintln(s.stdout, "No positions")
		return nil
	}
	tw := tabwriter.NewWriter(s.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tSTATUS\tCOLLATERAL\tPRINCIPAL\tPENDING")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Owner, p.Status,
			vault.FormatNative(p.Collateral), vault.FormatFixedPoint(p.DebtPrincipal), vault.FormatNative(p.PendingWithdraw))
	}
	return tw.Flush()
}
