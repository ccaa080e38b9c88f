// Package routes wires the vault accounting engine to the HTTP surface.
package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"ratevault/fixedpoint"
	"ratevault/oracle"
	"ratevault/vault"
)

const requestBodyLimit = 1 << 16 // 64 KiB

// VaultEngine is the accounting surface consumed by the gateway.
type VaultEngine interface {
	Deposit(caller ethcommon.Address, assetAmount *big.Int, receiver ethcommon.Address) (*big.Int, error)
	DepositMinRate(caller ethcommon.Address, assetAmount *big.Int, receiver ethcommon.Address, minRate *big.Int) (*big.Int, error)
	Withdraw(caller ethcommon.Address, assetAmount *big.Int, receiver, owner ethcommon.Address, rate *big.Int) (*big.Int, error)
	Redeem(caller ethcommon.Address, shareAmount *big.Int, receiver, owner ethcommon.Address, rate *big.Int) (*big.Int, error)
	BalanceOf(holder ethcommon.Address) (*big.Int, error)
	ReceiptBalanceOf(holder ethcommon.Address, rate *big.Int) (*big.Int, error)
	TotalShares() (*big.Int, error)
	Reserve() (*big.Int, error)
	CurrentQuote() (oracle.Quote, error)
}

type vaultRoutes struct {
	engine VaultEngine
}

func newVaultRoutes(engine VaultEngine) *vaultRoutes {
	return &vaultRoutes{engine: engine}
}

func (vr *vaultRoutes) mount(r chi.Router) {
	r.Post("/deposit", vr.deposit)
	r.Post("/withdraw", vr.withdraw)
	r.Post("/redeem", vr.redeem)
	r.Get("/quote", vr.quote)
	r.Get("/balance/{address}", vr.balance)
	r.Get("/supply", vr.supply)
}

type depositRequest struct {
	Caller      string `json:"caller"`
	Receiver    string `json:"receiver"`
	AssetAmount string `json:"assetAmount"`
	MinRate     string `json:"minRate,omitempty"`
}

type depositResponse struct {
	ShareAmount string `json:"shareAmount"`
}

func (vr *vaultRoutes) deposit(w http.ResponseWriter, req *http.Request) {
	var payload depositRequest
	if !decodeBody(w, req, &payload) {
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receiver, err := parseAddress(payload.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	assetAmount, err := parseAmount(payload.AssetAmount, "assetAmount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var shareAmount *big.Int
	if strings.TrimSpace(payload.MinRate) != "" {
		minRate, err := parseAmount(payload.MinRate, "minRate")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shareAmount, err = vr.engine.DepositMinRate(caller, assetAmount, receiver, minRate)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	} else {
		shareAmount, err = vr.engine.Deposit(caller, assetAmount, receiver)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, depositResponse{ShareAmount: shareAmount.String()})
}

type withdrawRequest struct {
	Caller      string `json:"caller"`
	Receiver    string `json:"receiver"`
	Owner       string `json:"owner"`
	AssetAmount string `json:"assetAmount"`
	Rate        string `json:"rate"`
}

type withdrawResponse struct {
	ShareAmount string `json:"shareAmount"`
}

func (vr *vaultRoutes) withdraw(w http.ResponseWriter, req *http.Request) {
	var payload withdrawRequest
	if !decodeBody(w, req, &payload) {
		return
	}
	caller, receiver, owner, rate, err := parseBurnCommon(payload.Caller, payload.Receiver, payload.Owner, payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	assetAmount, err := parseAmount(payload.AssetAmount, "assetAmount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shareAmount, err := vr.engine.Withdraw(caller, assetAmount, receiver, owner, rate)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{ShareAmount: shareAmount.String()})
}

type redeemRequest struct {
	Caller      string `json:"caller"`
	Receiver    string `json:"receiver"`
	Owner       string `json:"owner"`
	ShareAmount string `json:"shareAmount"`
	Rate        string `json:"rate"`
}

type redeemResponse struct {
	AssetAmount string `json:"assetAmount"`
}

func (vr *vaultRoutes) redeem(w http.ResponseWriter, req *http.Request) {
	var payload redeemRequest
	if !decodeBody(w, req, &payload) {
		return
	}
	caller, receiver, owner, rate, err := parseBurnCommon(payload.Caller, payload.Receiver, payload.Owner, payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shareAmount, err := parseAmount(payload.ShareAmount, "shareAmount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	assetAmount, err := vr.engine.Redeem(caller, shareAmount, receiver, owner, rate)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{AssetAmount: assetAmount.String()})
}

type quoteResponse struct {
	Rate       string `json:"rate"`
	ObservedAt int64  `json:"observedAt"`
	Source     string `json:"source"`
}

func (vr *vaultRoutes) quote(w http.ResponseWriter, req *http.Request) {
	quote, err := vr.engine.CurrentQuote()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Rate:       quote.Rate.String(),
		ObservedAt: quote.ObservedAt.UTC().Unix(),
		Source:     quote.Source,
	})
}

type balanceResponse struct {
	Address  string `json:"address"`
	Shares   string `json:"shares"`
	Rate     string `json:"rate,omitempty"`
	Receipts string `json:"receipts,omitempty"`
}

func (vr *vaultRoutes) balance(w http.ResponseWriter, req *http.Request) {
	holder, err := parseAddress(chi.URLParam(req, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shares, err := vr.engine.BalanceOf(holder)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	response := balanceResponse{Address: holder.Hex(), Shares: shares.String()}
	if rateParam := strings.TrimSpace(req.URL.Query().Get("rate")); rateParam != "" {
		rate, err := parseAmount(rateParam, "rate")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		receipts, err := vr.engine.ReceiptBalanceOf(holder, rate)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		response.Rate = rate.String()
		response.Receipts = receipts.String()
	}
	writeJSON(w, http.StatusOK, response)
}

type supplyResponse struct {
	TotalShares string `json:"totalShares"`
	Reserve     string `json:"reserve"`
}

func (vr *vaultRoutes) supply(w http.ResponseWriter, req *http.Request) {
	totalShares, err := vr.engine.TotalShares()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	reserve, err := vr.engine.Reserve()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supplyResponse{TotalShares: totalShares.String(), Reserve: reserve.String()})
}

func parseBurnCommon(callerRaw, receiverRaw, ownerRaw, rateRaw string) (caller, receiver, owner ethcommon.Address, rate *big.Int, err error) {
	if caller, err = parseAddress(callerRaw); err != nil {
		return
	}
	if receiver, err = parseAddress(receiverRaw); err != nil {
		return
	}
	if owner, err = parseAddress(ownerRaw); err != nil {
		return
	}
	rate, err = parseAmount(rateRaw, "rate")
	return
}

func decodeBody(w http.ResponseWriter, req *http.Request, out interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(req.Body, requestBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

func parseAddress(raw string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseAmount(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", field, raw)
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrZeroAssets):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, vault.ErrMinShareRatioNotMet):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, vault.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, vault.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, oracle.ErrStaleData):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, oracle.ErrInvalidRate), errors.Is(err, fixedpoint.ErrValueRange):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
