package ledger_http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/app/accounts"
	"ledger/internal/app/transfers"
	"ledger/internal/domain"
	"ledger/internal/repository/memory"
	"ledger/internal/util"
)

type testEnvelope struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data"`
	Error  *errorBody      `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	ids, err := util.NewIDGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	accountSvc := accounts.NewAccountService(store, accounts.GeneratorFunc(util.GenerateAccountNumber), 3, "ledger_events", zap.NewNop())
	transferSvc := transfers.NewTransferService(store, ids, nil, 10, "ledger_events", zap.NewNop())
	srv := httptest.NewServer(NewRouter(accountSvc, transferSvc, []string{"*"}, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, testEnvelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env testEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: response is not an envelope: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func createAccount(t *testing.T, srv *httptest.Server, holder, balance string) AccountResponse {
	t.Helper()
	status, env := do(t, srv, http.MethodPost, "/v1/accounts",
		`{"holder_name":"`+holder+`","initial_balance":"`+balance+`"}`)
	if status != http.StatusCreated || env.Result != "SUCCESS" {
		t.Fatalf("create account status=%d env=%+v", status, env)
	}
	var a AccountResponse
	if err := json.Unmarshal(env.Data, &a); err != nil {
		t.Fatal(err)
	}
	return a
}

func expectError(t *testing.T, status int, env testEnvelope, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus || env.Result != "ERROR" || env.Error == nil || env.Error.Code != wantCode {
		t.Fatalf("status=%d env=%+v, want %d/%s", status, env, wantStatus, wantCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := createAccount(t, srv, "Alice", "100")
	if len(a.AccountNumber) != 12 || a.Status != "ACTIVE" || !a.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected account %+v", a)
	}

	status, env := do(t, srv, http.MethodPost, "/v1/accounts/"+a.AccountNumber+"/deposit", `{"amount":"25.5"}`)
	if status != http.StatusOK {
		t.Fatalf("deposit status=%d env=%+v", status, env)
	}
	status, env = do(t, srv, http.MethodPost, "/v1/accounts/"+a.AccountNumber+"/withdraw", `{"amount":5}`)
	if status != http.StatusOK {
		t.Fatalf("withdraw status=%d env=%+v", status, env)
	}

	status, env = do(t, srv, http.MethodGet, "/v1/accounts/"+a.AccountNumber, "")
	if status != http.StatusOK {
		t.Fatalf("get status=%d", status)
	}
	var got AccountResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("120.5")) || got.Version != 2 {
		t.Fatalf("balance=%s version=%d", got.Balance, got.Version)
	}

	status, env = do(t, srv, http.MethodPost, "/v1/accounts/"+a.AccountNumber+"/withdraw", `{"amount":"1000"}`)
	expectError(t, status, env, http.StatusBadRequest, "INSUFFICIENT_BALANCE")

	status, env = do(t, srv, http.MethodPost, "/v1/accounts/"+a.AccountNumber+"/deposit", `{"amount":"0"}`)
	expectError(t, status, env, http.StatusBadRequest, "INVALID_AMOUNT")
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing holder", http.MethodPost, "/v1/accounts", `{"initial_balance":"1"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"blank holder", http.MethodPost, "/v1/accounts", `{"holder_name":"   "}`, http.StatusBadRequest, "INVALID_HOLDER_NAME"},
		{"negative opening balance", http.MethodPost, "/v1/accounts", `{"holder_name":"Bob","initial_balance":"-1"}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"malformed body", http.MethodPost, "/v1/accounts", `{"holder_name":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", http.MethodPost, "/v1/transfers", `{"from":"a"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing account", http.MethodGet, "/v1/accounts/000000000000", "", http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"bad transfer id", http.MethodGet, "/v1/transfers/abc", "", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown transfer", http.MethodGet, "/v1/transfers/42", "", http.StatusNotFound, "TRANSFER_NOT_FOUND"},
		{"bad limit", http.MethodGet, "/v1/accounts/000000000000/transfers?limit=x", "", http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, srv, tt.method, tt.path, tt.body)
			expectError(t, status, env, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestTransferOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	from := createAccount(t, srv, "Alice", "100")
	to := createAccount(t, srv, "Bob", "0")

	body := `{"from_account_number":"` + from.AccountNumber + `","to_account_number":"` + to.AccountNumber + `","amount":"40"}`
	status, env := do(t, srv, http.MethodPost, "/v1/transfers", body)
	if status != http.StatusOK {
		t.Fatalf("transfer status=%d env=%+v", status, env)
	}
	var tr TransferResponse
	if err := json.Unmarshal(env.Data, &tr); err != nil {
		t.Fatal(err)
	}
	if tr.Status != "SUCCESS" || tr.FromAccountBalance == nil || !tr.FromAccountBalance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected transfer %+v", tr)
	}
	if tr.ToAccountBalance == nil || !tr.ToAccountBalance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected destination balance %+v", tr)
	}

	status, env = do(t, srv, http.MethodGet, "/v1/transfers/"+tr.TransferID, "")
	if status != http.StatusOK {
		t.Fatalf("get transfer status=%d", status)
	}

	status, env = do(t, srv, http.MethodGet, "/v1/accounts/"+to.AccountNumber+"/transfers?limit=10", "")
	if status != http.StatusOK {
		t.Fatalf("list status=%d", status)
	}
	var list []TransferResponse
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].TransferID != tr.TransferID {
		t.Fatalf("list=%+v", list)
	}

	same := `{"from_account_number":"` + from.AccountNumber + `","to_account_number":"` + from.AccountNumber + `","amount":"1"}`
	status, env = do(t, srv, http.MethodPost, "/v1/transfers", same)
	expectError(t, status, env, http.StatusBadRequest, "SAME_ACCOUNT_TRANSFER")

	tooMuch := `{"from_account_number":"` + from.AccountNumber + `","to_account_number":"` + to.AccountNumber + `","amount":"61"}`
	status, env = do(t, srv, http.MethodPost, "/v1/transfers", tooMuch)
	expectError(t, status, env, http.StatusBadRequest, "INSUFFICIENT_BALANCE")
}

type failingTransfers struct {
	transfers.TransferService
	err error
}

func (f failingTransfers) Transfer(context.Context, string, string, decimal.Decimal) (*transfers.TransferResult, error) {
	return nil, f.err
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"infrastructure", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"exhausted", domain.ErrTransferFailed.WithCause(domain.ErrVersionConflict), http.StatusConflict, "TRANSFER_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(nil, failingTransfers{err: tt.err}, []string{"*"}, zap.NewNop()))
			defer srv.Close()

			status, env := do(t, srv, http.MethodPost, "/v1/transfers",
				`{"from_account_number":"aaaaaaaaaaaa","to_account_number":"bbbbbbbbbbbb","amount":"1"}`)
			expectError(t, status, env, tt.wantStatus, tt.wantCode)
			if strings.Contains(env.Error.Message, "pq:") || strings.Contains(env.Error.Message, "modified concurrently") {
				t.Fatalf("cause leaked to client: %q", env.Error.Message)
			}
		})
	}
}
