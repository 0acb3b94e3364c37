package ledger_http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ledger/internal/app/accounts"
	"ledger/internal/app/transfers"
)

type LedgerHandler struct {
	accounts  accounts.AccountService
	transfers transfers.TransferService
	logger    *zap.Logger
}

func NewLedgerHandler(a accounts.AccountService, t transfers.TransferService, l *zap.Logger) *LedgerHandler {
	return &LedgerHandler{accounts: a, transfers: t, logger: l}
}

func (h *LedgerHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if msg, ok := decodeAndValidate(r, &req); !ok {
		writeInvalidRequest(w, msg, h.logger)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req.HolderName, req.InitialBalance)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, newAccountResponse(account), h.logger)
}

func (h *LedgerHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, newAccountResponse(account), h.logger)
}

func (h *LedgerHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if msg, ok := decodeAndValidate(r, &req); !ok {
		writeInvalidRequest(w, msg, h.logger)
		return
	}

	account, err := h.accounts.Deposit(r.Context(), chi.URLParam(r, "accountNumber"), req.Amount)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, newAccountResponse(account), h.logger)
}

func (h *LedgerHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if msg, ok := decodeAndValidate(r, &req); !ok {
		writeInvalidRequest(w, msg, h.logger)
		return
	}

	account, err := h.accounts.Withdraw(r.Context(), chi.URLParam(r, "accountNumber"), req.Amount)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, newAccountResponse(account), h.logger)
}

func (h *LedgerHandler) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeInvalidRequest(w, "limit must be a positive integer", h.logger)
			return
		}
		limit = n
	}

	list, err := h.transfers.ListTransfers(r.Context(), chi.URLParam(r, "accountNumber"), limit)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	resp := make([]TransferResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newTransferResponse(&list[i]))
	}
	writeData(w, http.StatusOK, resp, h.logger)
}

func (h *LedgerHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if msg, ok := decodeAndValidate(r, &req); !ok {
		writeInvalidRequest(w, msg, h.logger)
		return
	}

	result, err := h.transfers.Transfer(r.Context(), req.FromAccountNumber, req.ToAccountNumber, req.Amount)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, newTransferResultResponse(result), h.logger)
}

func (h *LedgerHandler) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transferId"), 10, 64)
	if err != nil {
		writeInvalidRequest(w, "transfer id must be an integer", h.logger)
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, newTransferResponse(transfer), h.logger)
}
