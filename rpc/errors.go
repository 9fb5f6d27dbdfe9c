package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"nhbvault/native/bank"
	"nhbvault/native/vault"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Context map[string]string `json:"context,omitempty"`
}

var (
	errInvalidBody      = errors.New("rpc: invalid request body")
	errInvalidSignature = errors.New("rpc: invalid call signature")
	errStaleNonce       = errors.New("rpc: nonce already used")
	errInvalidAddress   = errors.New("rpc: invalid address")
	errJournalDisabled  = errors.New("rpc: event journal not configured")
)

// statusFor maps an engine or transport error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errInvalidBody), errors.Is(err, errInvalidSignature), errors.Is(err, errInvalidAddress),
		errors.Is(err, vault.ErrZeroAmount), errors.Is(err, vault.ErrUnknownMethod),
		errors.Is(err, vault.ErrUnsolicitedTransfer), errors.Is(err, vault.ErrValueNotAccepted),
		errors.Is(err, vault.ErrInvalidAccount), errors.Is(err, vault.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errJournalDisabled):
		return http.StatusNotFound
	case errors.Is(err, errStaleNonce), errors.Is(err, vault.ErrOperationPaused), errors.Is(err, vault.ErrReentrancyDetected):
		return http.StatusConflict
	case errors.Is(err, vault.ErrOracleInvalidPrice), errors.Is(err, vault.ErrOracleStalePrice),
		errors.Is(err, vault.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, vault.ErrGlobalCapExceeded), errors.Is(err, vault.ErrWithdrawalLimitExceeded),
		errors.Is(err, vault.ErrInsufficientBalance), errors.Is(err, vault.ErrTotalValueUnderflow),
		errors.Is(err, vault.ErrConversionOverflow), errors.Is(err, vault.ErrBalanceOverflow),
		errors.Is(err, vault.ErrZeroValue),
		errors.Is(err, bank.ErrInsufficientFunds), errors.Is(err, bank.ErrInsufficientAllowance),
		errors.Is(err, bank.ErrInsufficientCustody):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// codeFor extends vault.Code with the transport and custody sentinels.
func codeFor(err error) string {
	if code := vault.Code(err); code != "internal" {
		return code
	}
	switch {
	case errors.Is(err, errInvalidBody):
		return "invalid_body"
	case errors.Is(err, errInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, errStaleNonce):
		return "stale_nonce"
	case errors.Is(err, errInvalidAddress):
		return "invalid_address"
	case errors.Is(err, errJournalDisabled):
		return "journal_disabled"
	case errors.Is(err, bank.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, bank.ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, bank.ErrInsufficientCustody):
		return "insufficient_custody"
	default:
		return "internal"
	}
}

// errorContext exposes the numeric fields of the typed vault errors.
func errorContext(err error) map[string]string {
	var (
		capErr      *vault.GlobalCapError
		limitErr    *vault.WithdrawalLimitError
		balanceErr  *vault.InsufficientBalanceError
		staleErr    *vault.StalePriceError
		underflow   *vault.TotalValueUnderflowError
		transferErr *vault.TransferError
	)
	switch {
	case errors.As(err, &capErr):
		return map[string]string{"attempted": capErr.Attempted.Dec(), "cap": capErr.Cap.Dec()}
	case errors.As(err, &limitErr):
		return map[string]string{"requested": limitErr.Requested.Dec(), "cap": limitErr.Cap.Dec()}
	case errors.As(err, &balanceErr):
		return map[string]string{"requested": balanceErr.Requested.Dec(), "available": balanceErr.Available.Dec()}
	case errors.As(err, &staleErr):
		return map[string]string{"age": staleErr.Age.String(), "maxStaleness": staleErr.MaxStaleness.String()}
	case errors.As(err, &underflow):
		return map[string]string{"requested": underflow.Requested.Dec(), "total": underflow.Total.Dec()}
	case errors.As(err, &transferErr):
		return map[string]string{"reason": transferErr.Reason}
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: codeFor(err), Context: errorContext(err)})
}
