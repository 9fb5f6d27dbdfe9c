package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nhbvault/core/types"
	"nhbvault/crypto"
	"nhbvault/indexer"
	"nhbvault/integrations/exports"
	"nhbvault/native/vault"
	telemetry "nhbvault/observability/otel"
)

// AccountView renders an account with decimal string amounts.
type AccountView struct {
	Address         string `json:"address"`
	BalanceNative   string `json:"balanceNative"`
	BalanceStable   string `json:"balanceStable"`
	DepositCount    uint64 `json:"depositCount"`
	WithdrawalCount uint64 `json:"withdrawalCount"`
	Exists          bool   `json:"exists"`
}

// TotalsView reports global accounting alongside custody holdings.
type TotalsView struct {
	TotalValueUSD6    string `json:"totalValueUSD6"`
	DepositCount      uint64 `json:"depositCount"`
	WithdrawalCount   uint64 `json:"withdrawalCount"`
	NativeHeld        string `json:"nativeHeld"`
	StableHeld        string `json:"stableHeld"`
	Paused            bool   `json:"paused"`
	Admin             string `json:"admin"`
	StableAsset       string `json:"stableAsset"`
	GlobalCapUSD6     string `json:"globalCapUSD6"`
	WithdrawalCapUSD6 string `json:"withdrawalCapUSD6"`
}

// CallResult is returned after a call commits.
type CallResult struct {
	Method  string      `json:"method"`
	Caller  string      `json:"caller"`
	Nonce   uint64      `json:"nonce"`
	Account AccountView `json:"account"`
}

// EventView is one journaled event.
type EventView struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Account    string            `json:"account,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	USDValue   string            `json:"usdValue,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type devMintRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type devApproveRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": s.engine.Paused()})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var call types.Call
	if err := decodeBody(w, r, &call); err != nil {
		writeError(w, err)
		return
	}
	caller, err := call.From()
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidSignature, err))
		return
	}

	ctx, span := telemetry.Tracer().Start(r.Context(), "vault.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("vault.method", call.Method),
		attribute.String("vault.account", caller.String()),
		attribute.Int64("vault.nonce", int64(call.Nonce)),
	)

	s.execMu.Lock()
	defer s.execMu.Unlock()
	if err := s.nonces.Consume(caller, call.Nonce); err != nil {
		span.SetStatus(codes.Error, codeFor(err))
		writeError(w, err)
		return
	}
	if err := vault.Dispatch(ctx, s.engine, caller, &call); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codeFor(err))
		s.logger.Info("call rejected", "method", call.Method, "account", caller.String(), "code", codeFor(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResult{
		Method:  strings.TrimSpace(call.Method),
		Caller:  caller.String(),
		Nonce:   call.Nonce,
		Account: s.accountView(caller),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.accountView(addr))
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := s.nonces.Next(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr.String(), "next": next})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	native, err := s.engine.TotalNativeHeld(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	stable, err := s.engine.TotalStableHeld(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	totals := s.engine.Totals()
	params := s.engine.Params()
	writeJSON(w, http.StatusOK, TotalsView{
		TotalValueUSD6:    totals.TotalValueUSD6.Dec(),
		DepositCount:      totals.DepositCount,
		WithdrawalCount:   totals.WithdrawalCount,
		NativeHeld:        native.Dec(),
		StableHeld:        stable.Dec(),
		Paused:            s.engine.Paused(),
		Admin:             s.engine.Admin().String(),
		StableAsset:       params.StableAsset,
		GlobalCapUSD6:     params.GlobalCapUSD6.Dec(),
		WithdrawalCapUSD6: params.WithdrawalCapUSD6.Dec(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records, ok := s.queryJournal(w, r)
	if !ok {
		return
	}
	out := make([]EventView, 0, len(records))
	for _, rec := range records {
		out = append(out, EventView{
			ID:         rec.ID.String(),
			Sequence:   rec.Sequence,
			Type:       rec.Type,
			Account:    rec.Account,
			Amount:     rec.Amount,
			USDValue:   rec.USDValue,
			Attributes: rec.AttributeMap(),
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleEventsExport(w http.ResponseWriter, r *http.Request) {
	records, ok := s.queryJournal(w, r)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	data, contentType, checksum, err := exports.Events(format, records)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	if format == "" {
		format = exports.FormatCSV
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"vault-events.%s\"", format))
	w.Header().Set(checksumHeader, checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// queryJournal runs the journal query described by the request's account,
// type and limit parameters. It writes the error response itself.
func (s *Server) queryJournal(w http.ResponseWriter, r *http.Request) ([]indexer.Record, bool) {
	if s.cfg.Journal == nil {
		writeError(w, errJournalDisabled)
		return nil, false
	}
	query := r.URL.Query()
	q := indexer.Query{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, err)
			return nil, false
		}
		q.Account = addr.String()
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidBody))
			return nil, false
		}
		q.Limit = limit
	}
	records, err := s.cfg.Journal.Recent(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return records, true
}

func (s *Server) handleDevMint(w http.ResponseWriter, r *http.Request) {
	var req devMintRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := types.ParseAssetKind(req.Asset)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	addr, amount, err := parseAccountAmount(req.Account, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.DevBank.Mint(kind, addr, amount); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": addr.String(),
		"asset":   kind.String(),
		"balance": s.cfg.DevBank.BalanceOf(kind, addr).Dec(),
	})
}

func (s *Server) handleDevApprove(w http.ResponseWriter, r *http.Request) {
	var req devApproveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, amount, err := parseAccountAmount(req.Account, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.DevBank.Approve(addr, amount); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":   addr.String(),
		"allowance": s.cfg.DevBank.Allowance(addr).Dec(),
	})
}

func (s *Server) accountView(addr crypto.Address) AccountView {
	view := AccountView{
		Address:       addr.String(),
		BalanceNative: "0",
		BalanceStable: "0",
	}
	acct, ok := s.engine.Account(addr)
	if !ok {
		return view
	}
	view.BalanceNative = acct.Balance(types.AssetNative).Dec()
	view.BalanceStable = acct.Balance(types.AssetStable).Dec()
	view.DepositCount = acct.DepositCount
	view.WithdrawalCount = acct.WithdrawalCount
	view.Exists = true
	return view
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", errInvalidAddress, err)
	}
	return addr, nil
}

func parseAccountAmount(rawAccount, rawAmount string) (crypto.Address, *uint256.Int, error) {
	addr, err := parseAddress(rawAccount)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(rawAmount))
	if err != nil {
		return crypto.Address{}, nil, fmt.Errorf("%w: amount: %v", errInvalidBody, err)
	}
	return addr, amount, nil
}
