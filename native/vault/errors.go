package vault

import "errors"

// ErrorCode is the stable numeric identifier of a vault failure. The values
// are part of the external interface and must not be renumbered.
type ErrorCode uint16

const (
	CodeNone                      ErrorCode = 0
	CodeNoVault                   ErrorCode = 1
	CodeVaultAlreadyExists        ErrorCode = 2
	CodeInsufficientCollateral    ErrorCode = 3
	CodeLtvExceeded               ErrorCode = 4
	CodeInsufficientDebt          ErrorCode = 5
	CodeInsufficientAllowance     ErrorCode = 6
	CodeWithdrawPending           ErrorCode = 7
	CodeNoWithdrawPending         ErrorCode = 8
	CodeUnbondingNotComplete      ErrorCode = 9
	CodeBelowMinDeposit           ErrorCode = 10
	CodeContractPaused            ErrorCode = 11
	CodeUnauthorized              ErrorCode = 12
	CodeInvalidValidatorKey       ErrorCode = 13
	CodeZeroAmount                ErrorCode = 14
	CodeOverflow                  ErrorCode = 15
	CodeInsufficientLiquidBalance ErrorCode = 16
)

var codeNames = map[ErrorCode]string{
	CodeNoVault:                   "NoVault",
	CodeVaultAlreadyExists:        "VaultAlreadyExists",
	CodeInsufficientCollateral:    "InsufficientCollateral",
	CodeLtvExceeded:               "LtvExceeded",
	CodeInsufficientDebt:          "InsufficientDebt",
	CodeInsufficientAllowance:     "InsufficientAllowance",
	CodeWithdrawPending:           "WithdrawPending",
	CodeNoWithdrawPending:         "NoWithdrawPending",
	CodeUnbondingNotComplete:      "UnbondingNotComplete",
	CodeBelowMinDeposit:           "BelowMinDeposit",
	CodeContractPaused:            "ContractPaused",
	CodeUnauthorized:              "Unauthorized",
	CodeInvalidValidatorKey:       "InvalidValidatorKey",
	CodeZeroAmount:                "ZeroAmount",
	CodeOverflow:                  "Overflow",
	CodeInsufficientLiquidBalance: "InsufficientLiquidBalance",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Error is a typed vault failure carrying its stable code.
type Error struct {
	Code ErrorCode
	msg  string
}

func (e *Error) Error() string { return "vault: " + e.msg }

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

var (
	ErrNoVault                   = newError(CodeNoVault, "no vault for caller")
	ErrVaultAlreadyExists        = newError(CodeVaultAlreadyExists, "vault already exists")
	ErrInsufficientCollateral    = newError(CodeInsufficientCollateral, "insufficient collateral")
	ErrLtvExceeded               = newError(CodeLtvExceeded, "loan-to-value ceiling exceeded")
	ErrInsufficientDebt          = newError(CodeInsufficientDebt, "no outstanding debt")
	ErrInsufficientAllowance     = newError(CodeInsufficientAllowance, "debt token allowance too low")
	ErrWithdrawPending           = newError(CodeWithdrawPending, "withdrawal already pending")
	ErrNoWithdrawPending         = newError(CodeNoWithdrawPending, "no withdrawal pending")
	ErrUnbondingNotComplete      = newError(CodeUnbondingNotComplete, "unbonding not complete")
	ErrBelowMinDeposit           = newError(CodeBelowMinDeposit, "deposit below minimum")
	ErrContractPaused            = newError(CodeContractPaused, "contract paused")
	ErrUnauthorized              = newError(CodeUnauthorized, "caller is not the owner")
	ErrInvalidValidatorKey       = newError(CodeInvalidValidatorKey, "invalid validator key")
	ErrZeroAmount                = newError(CodeZeroAmount, "amount must be positive")
	ErrOverflow                  = newError(CodeOverflow, "arithmetic overflow")
	ErrInsufficientLiquidBalance = newError(CodeInsufficientLiquidBalance, "insufficient liquid balance")
)

var errNilState = errors.New("vault engine: state not configured")

// Code extracts the vault error code from err, looking through wrapping.
// Errors that did not originate from the vault report CodeNone.
func Code(err error) ErrorCode {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	return CodeNone
}

// Retryable reports whether the failure is an expected outcome that succeeds
// once external conditions change, such as an unbonding completing.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeUnbondingNotComplete, CodeWithdrawPending:
		return true
	default:
		return false
	}
}
