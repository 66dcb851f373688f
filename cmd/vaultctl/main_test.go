package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stakevault/crypto"
)

const testValidator = "01bcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbcbc"

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`DataDir = %q
Environment = "test"

[staking]
UnbondingDelay = "1h"
MinDelegation = "100"

[vault]
MinDelegation = "100"

[genesis]
owner = "seed:owner"
delegate = %q

[[genesis.validators]]
pub_key = %q
moniker = "alpha"

[genesis.alloc]
"seed:alice" = "2000"
`, filepath.Join(dir, "data"), testValidator, testValidator)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, cfg string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--config", cfg}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, cfg, args...)
	if code != 0 {
		t.Fatalf("vaultctl %s exited %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}

	cfg := writeTestConfig(t)
	code, _, errOut := runCLI(t, cfg, "bogus")
	if code != 1 || !strings.Contains(errOut, "Unknown command: bogus") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
	code, _, errOut = runCLI(t, cfg, "deposit", "--amount", "1")
	if code != 1 || !strings.Contains(errOut, "--from is required") || !strings.Contains(errOut, "Usage: vaultctl deposit") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
}

func TestLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)

	out := mustRun(t, cfg, "init")
	if !strings.Contains(out, "Allocated:    2000") {
		t.Fatalf("unexpected init output:\n%s", out)
	}
	if out := mustRun(t, cfg, "init"); !strings.Contains(out, "already initialised") {
		t.Fatalf("expected idempotent init, got:\n%s", out)
	}

	out = mustRun(t, cfg, "deposit", "--from", "seed:alice", "--amount", "1000")
	if !strings.Contains(out, "OK deposit") || !strings.Contains(out, "vault.deposited") {
		t.Fatalf("unexpected deposit output:\n%s", out)
	}
	mustRun(t, cfg, "borrow", "--from", "seed:alice", "--amount", "400")

	out = mustRun(t, cfg, "account", "--addr", "seed:alice")
	for _, want := range []string{
		"Native balance:   1000",
		"Token balance:    400",
		"Collateral:       1000 ($20.00)",
		"LTV:              40.00%",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("account output missing %q:\n%s", want, out)
		}
	}

	code, _, errOut := runCLI(t, cfg, "borrow", "--from", "seed:alice", "--amount", "500")
	if code != 1 || !strings.Contains(errOut, "code 4 LtvExceeded") {
		t.Fatalf("expected LTV failure, got %d %q", code, errOut)
	}
	code, _, errOut = runCLI(t, cfg, "force-delegate", "--from", "seed:alice")
	if code != 1 || !strings.Contains(errOut, "Unauthorized") {
		t.Fatalf("expected unauthorized, got %d %q", code, errOut)
	}

	out = mustRun(t, cfg, "force-delegate", "--from", "seed:owner")
	if !strings.Contains(out, "Amount:   1000") {
		t.Fatalf("unexpected delegate output:\n%s", out)
	}

	mustRun(t, cfg, "withdraw", "--from", "seed:alice", "--amount", "100")
	code, _, errOut = runCLI(t, cfg, "finalize", "--from", "seed:alice")
	if code != 1 || !strings.Contains(errOut, "retryable") {
		t.Fatalf("expected retryable failure, got %d %q", code, errOut)
	}

	out = mustRun(t, cfg, "summary")
	if !strings.Contains(out, "Unbonding:") || !strings.Contains(out, "Total delegated:     900") ||
		!strings.Contains(out, "Pending withdrawals: 100") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	mustRun(t, cfg, "advance", "--by", "1h")
	if out := mustRun(t, cfg, "settle"); !strings.Contains(out, "1 entries") {
		t.Fatalf("unexpected settle output:\n%s", out)
	}
	if out := mustRun(t, cfg, "finalize", "--from", "seed:alice"); !strings.Contains(out, "Amount:   100") {
		t.Fatalf("unexpected finalize output:\n%s", out)
	}

	if out := mustRun(t, cfg, "validators"); !strings.Contains(out, "alpha") {
		t.Fatalf("unexpected validators output:\n%s", out)
	}
	if out := mustRun(t, cfg, "positions"); !strings.Contains(out, "active") {
		t.Fatalf("unexpected positions output:\n%s", out)
	}
}

func TestPauseBlocksUsers(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "init")
	mustRun(t, cfg, "pause", "--from", "seed:owner")

	code, _, errOut := runCLI(t, cfg, "deposit", "--from", "seed:alice", "--amount", "1")
	if code != 1 || !strings.Contains(errOut, "ContractPaused") {
		t.Fatalf("expected paused failure, got %d %q", code, errOut)
	}
	mustRun(t, cfg, "unpause", "--from", "seed:owner")
	mustRun(t, cfg, "deposit", "--from", "seed:alice", "--amount", "1")
	mustRun(t, cfg, "fund", "--from", "seed:owner", "--to", "seed:carol", "--amount", "3")
	if out := mustRun(t, cfg, "account", "--addr", "seed:carol"); !strings.Contains(out, "Native balance:   3") {
		t.Fatalf("unexpected account output:\n%s", out)
	}
}

func TestKeygenImportReproducesKey(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	code, out, errOut := runCLI(t, missing, "keygen")
	if code != 0 {
		t.Fatalf("keygen must not need a config, exited %d: %s", code, errOut)
	}
	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok {
			fields[key] = strings.TrimSpace(value)
		}
	}
	if _, err := crypto.ParseAddress(fields["Address"]); err != nil {
		t.Fatalf("keygen printed an invalid address %q: %v", fields["Address"], err)
	}
	if _, err := crypto.ParseValidatorKey(fields["Validator"]); err != nil {
		t.Fatalf("keygen printed an invalid validator key %q: %v", fields["Validator"], err)
	}

	code, again, errOut := runCLI(t, missing, "keygen", "--import", fields["Private key"])
	if code != 0 {
		t.Fatalf("import exited %d: %s", code, errOut)
	}
	if again != out {
		t.Fatalf("import derived different keys:\n%s\nvs\n%s", again, out)
	}

	code, _, errOut = runCLI(t, missing, "keygen", "--import", "0x1234")
	if code != 1 || !strings.Contains(errOut, "keygen") {
		t.Fatalf("expected short key failure, got %d %q", code, errOut)
	}
}
