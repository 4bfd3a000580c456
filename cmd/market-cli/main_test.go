package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testrequire "github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"nftmarket/crypto"
	"nftmarket/gateway/middleware"
)

type capturedCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Auth   string            `json:"-"`
}

func newStubServer(t *testing.T, result interface{}) (*httptest.Server, *[]capturedCall) {
	t.Helper()
	var calls []capturedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		testrequire.NoError(t, err)
		var call capturedCall
		testrequire.NoError(t, json.Unmarshal(body, &call))
		call.Auth = r.Header.Get("Authorization")
		calls = append(calls, call)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testAccount(fill byte) string {
	return crypto.FormatAddress(crypto.MarketPrefix, [20]byte{fill})
}

func testContract(fill byte) string {
	return crypto.FormatAddress(crypto.ContractPrefix, [20]byte{fill})
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	profile := filepath.Join(t.TempDir(), "cli.yaml")
	code := run(append([]string{"--profile", profile}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")

	loaded, err := loadProfile(path)
	testrequire.NoError(t, err)
	assert.Equal(t, defaultEndpoint, loaded.Endpoint)

	want := Profile{Endpoint: "http://market:8547/rpc", Token: "secret-token", Caller: testAccount(1)}
	testrequire.NoError(t, saveProfile(path, want))
	info, err := os.Stat(path)
	testrequire.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err = loadProfile(path)
	testrequire.NoError(t, err)
	assert.Equal(t, want, loaded)
}

func TestProfileSetAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	var stdout, stderr bytes.Buffer
	code := run([]string{"--profile", path, "profile", "set", "--endpoint", "http://node/rpc", "--caller", testAccount(2)}, &stdout, &stderr)
	testrequire.Equal(t, 0, code, stderr.String())

	stored, err := loadProfile(path)
	testrequire.NoError(t, err)
	assert.Equal(t, "http://node/rpc", stored.Endpoint)
	assert.Equal(t, testAccount(2), stored.Caller)

	stdout.Reset()
	code = run([]string{"--profile", path, "profile", "set", "--caller", "not-an-address"}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	stdout.Reset()
	code = run([]string{"--profile", path, "profile", "show"}, &stdout, &stderr)
	testrequire.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "http://node/rpc")
}

func TestParseEndTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "", want: ""},
		{raw: "0", want: ""},
		{raw: "+2h", want: strconv.FormatInt(now.Add(2*time.Hour).Unix(), 10)},
		{raw: "2024-01-02T03:04:05Z", want: strconv.FormatInt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Unix(), 10)},
		{raw: "1700003600", want: "1700003600"},
		{raw: "+soon", wantErr: true},
		{raw: "tomorrow", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseEndTime(tc.raw, now)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		testrequire.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestCreateSendsTermsWithCaller(t *testing.T) {
	original := cliNow
	cliNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	defer func() { cliNow = original }()

	order := map[string]interface{}{"id": "0xabc", "status": "open"}
	srv, calls := newStubServer(t, order)
	code, stdout, stderr := runCLI(t, "--rpc", srv.URL, "--token", "jwt", "--caller", testAccount(1),
		"create", "--contract", testContract(9), "--token-id", "7", "--buy-price", "300", "--start-price", "100", "--end", "+1h")
	testrequire.Equal(t, 0, code, stderr)

	testrequire.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "market_create", call.Method)
	assert.Equal(t, "Bearer jwt", call.Auth)
	testrequire.Len(t, call.Params, 1)
	var params map[string]string
	testrequire.NoError(t, json.Unmarshal(call.Params[0], &params))
	assert.Equal(t, map[string]string{
		"caller":     testAccount(1),
		"contract":   testContract(9),
		"tokenId":    "7",
		"buyPrice":   "300",
		"startPrice": "100",
		"endTime":    "1700003600",
	}, params)

	var printed map[string]interface{}
	testrequire.NoError(t, json.Unmarshal([]byte(stdout), &printed))
	assert.Equal(t, "0xabc", printed["id"])
}

func TestBatchCommandReadsItems(t *testing.T) {
	srv, calls := newStubServer(t, []interface{}{})
	items := filepath.Join(t.TempDir(), "items.json")
	testrequire.NoError(t, os.WriteFile(items, []byte(`[
		{"contract":"`+testContract(9)+`","tokenId":"1","amount":"10"},
		{"contract":"`+testContract(9)+`","tokenId":"2","amount":"15"}
	]`), 0o600))

	code, _, stderr := runCLI(t, "--rpc", srv.URL, "bid-many", "--items", items, "--value", "25")
	testrequire.Equal(t, 0, code, stderr)
	testrequire.Len(t, *calls, 1)
	assert.Equal(t, "market_bidMany", (*calls)[0].Method)

	var params struct {
		Caller string                   `json:"caller"`
		Items  []map[string]interface{} `json:"items"`
		Value  string                   `json:"value"`
	}
	testrequire.NoError(t, json.Unmarshal((*calls)[0].Params[0], &params))
	assert.Empty(t, params.Caller)
	assert.Len(t, params.Items, 2)
	assert.Equal(t, "25", params.Value)

	code, _, stderr = runCLI(t, "--rpc", srv.URL, "buy-many", "--items", items)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--value is required")
}

func TestQueryCommandsUsePositionalParams(t *testing.T) {
	srv, calls := newStubServer(t, map[string]interface{}{"balance": "10"})

	code, _, stderr := runCLI(t, "--rpc", srv.URL, "--caller", testAccount(3), "balance")
	testrequire.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "--rpc", srv.URL, "flags", "--contract", testContract(4))
	testrequire.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "--rpc", srv.URL, "fee")
	testrequire.Equal(t, 0, code, stderr)

	testrequire.Len(t, *calls, 3)
	assert.Equal(t, "market_getBalance", (*calls)[0].Method)
	assert.JSONEq(t, strconv.Quote(testAccount(3)), string((*calls)[0].Params[0]))
	assert.Equal(t, "market_getTokenFlags", (*calls)[1].Method)
	assert.JSONEq(t, strconv.Quote(testContract(4)), string((*calls)[1].Params[0]))
	assert.Equal(t, "market_getFee", (*calls)[2].Method)
	assert.Empty(t, (*calls)[2].Params)
}

func TestRPCErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32011,"message":"orders disabled"}}`))
	}))
	defer srv.Close()

	code, _, stderr := runCLI(t, "--rpc", srv.URL, "--caller", testAccount(1), "cancel", "--contract", testContract(2), "--token-id", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-32011")
	assert.Contains(t, stderr, "orders disabled")
}

func TestCommandValidation(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: market-cli")

	code, _, stderr = runCLI(t, "launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: launch")

	code, _, stderr = runCLI(t, "bid", "--contract", testContract(1), "--token-id", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--value is required")

	code, _, stderr = runCLI(t, "create", "--contract", testContract(1), "--token-id", "1", "--buy-price", "5", "--end", "whenever")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--end")
}

func TestIssueTokenIsAccepted(t *testing.T) {
	subject := testAccount(5)
	code, stdout, stderr := runCLI(t, "token", "--secret", "s3cret", "--subject", subject, "--issuer", "market", "--scope", "market:write", "--ttl", "1h")
	testrequire.Equal(t, 0, code, stderr)
	signed := bytes.TrimSpace([]byte(stdout))
	testrequire.NotEmpty(t, signed)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "s3cret", Issuer: "market"}, nil)
	var (
		gotCaller [20]byte
		bound     bool
	)
	handler := auth.Middleware("market:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller, bound = middleware.CallerFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+string(signed))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	testrequire.Equal(t, http.StatusOK, rec.Code)
	testrequire.True(t, bound)
	assert.Equal(t, [20]byte{5}, gotCaller)
}

func TestEventsParquetExport(t *testing.T) {
	events := []map[string]interface{}{
		{"id": "a", "sequence": 1, "type": "market.order_created", "attributes": map[string]string{"id": "ab", "contract": testContract(1), "tokenId": "1"}, "createdAt": 1700000000},
		{"id": "b", "sequence": 2, "type": "market.token_sold", "attributes": map[string]string{"id": "ab", "contract": testContract(1), "tokenId": "1"}, "createdAt": 1700000060},
	}
	srv, calls := newStubServer(t, events)
	path := filepath.Join(t.TempDir(), "events.parquet")

	code, stdout, stderr := runCLI(t, "--rpc", srv.URL, "events", "--contract", testContract(1), "--parquet", path)
	testrequire.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "wrote 2 events")
	testrequire.Len(t, *calls, 1)

	fr, err := local.NewLocalFileReader(path)
	testrequire.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(eventRow), 1)
	testrequire.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(2), pr.GetNumRows())
}

func TestIssueTokenPromptsForSecret(t *testing.T) {
	t.Setenv("MARKET_AUTH_SECRET", "")
	origTerminal, origRead := stdinIsTerminal, readPassword
	defer func() { stdinIsTerminal, readPassword = origTerminal, origRead }()

	stdinIsTerminal = func() bool { return false }
	code, _, stderr := runCLI(t, "token", "--subject", testAccount(5))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "MARKET_AUTH_SECRET")

	stdinIsTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) { return []byte("typed-secret\n"), nil }
	code, stdout, stderr := runCLI(t, "token", "--subject", testAccount(5))
	testrequire.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "HMAC secret: ")
	assert.NotEmpty(t, strings.TrimSpace(stdout))
}
