package events

import (
	"testing"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

func TestVaultDepositedEvent(t *testing.T) {
	user := crypto.AccountFromSeed("alice")
	evt := VaultDeposited{
		User:          user,
		Amount:        uint256.NewInt(100),
		NewCollateral: uint256.NewInt(250),
	}.Event()
	if evt.Type != TypeVaultDeposited {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["user"] != user.String() {
		t.Fatalf("unexpected user attr: %s", evt.Attributes["user"])
	}
	if evt.Attributes["amount"] != "100" || evt.Attributes["newCollateral"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestTokenEventsNormaliseSymbol(t *testing.T) {
	evt := TokenMint{Symbol: " vnat ", To: crypto.AccountFromSeed("bob"), Amount: uint256.NewInt(7)}.Event()
	if evt.Attributes["token"] != "VNAT" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["supply"] != "0" {
		t.Fatalf("nil supply should render as zero, got %s", evt.Attributes["supply"])
	}
	transfer := TokenTransfer{Symbol: "vNAT", From: crypto.AccountFromSeed("a"), To: crypto.AccountFromSeed("b"), Amount: uint256.NewInt(1)}.Event()
	if _, ok := transfer.Attributes["spender"]; ok {
		t.Fatalf("spender must be omitted for direct transfers")
	}
}

func TestStakeUndelegatedOmitsUnsetFields(t *testing.T) {
	evt := StakeUndelegated{Delegator: crypto.ContractFromSeed("vault"), Validator: "01ab", Amount: uint256.NewInt(5)}.Event()
	if _, ok := evt.Attributes["releaseTime"]; ok {
		t.Fatalf("releaseTime should be omitted")
	}
	evt = StakeUndelegated{Amount: uint256.NewInt(5), UnbondingID: 3, ReleaseTime: 99}.Event()
	if evt.Attributes["unbondingId"] != "3" || evt.Attributes["releaseTime"] != "99" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestBufferFlushAndReset(t *testing.T) {
	var buf Buffer
	buf.Emit(VaultPaused{By: crypto.AccountFromSeed("owner")})
	buf.Emit(VaultUnpaused{By: crypto.AccountFromSeed("owner")})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	var sink Buffer
	flushed := buf.Flush(&sink)
	if len(flushed) != 2 || sink.Len() != 2 || buf.Len() != 0 {
		t.Fatalf("unexpected flush result: flushed=%d sink=%d buf=%d", len(flushed), sink.Len(), buf.Len())
	}
	if sink.Events()[0].EventType() != TypeVaultPaused {
		t.Fatalf("flush must preserve order")
	}
	buf.Emit(VaultPaused{})
	buf.Reset()
	if buf.Len() != 0 {
		t.Fatalf("reset should drop events")
	}
}

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestRecordFallsBackToType(t *testing.T) {
	rec := Record(plainEvent{})
	if rec.Type != "plain" || len(rec.Attributes) != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if Record(nil) != nil {
		t.Fatalf("nil event should produce nil record")
	}
	rec = Record(VaultDelegationBatched{Amount: uint256.NewInt(9)})
	if rec.Attributes["amount"] != "9" {
		t.Fatalf("unexpected amount: %s", rec.Attributes["amount"])
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	var a, b Buffer
	Fanout{&a, nil, &b}.Emit(VaultPaused{})
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("fanout should reach every emitter")
	}
}
