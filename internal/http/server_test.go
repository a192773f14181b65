package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/export"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/services"
	"kharcha/internal/storage"
	"kharcha/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	*httptest.Server
	srv   *Server
	store storage.Store
	logs  *syncBuffer
}

// syncBuffer collects log output written from handler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// gatedStore holds the next expense read until its release channel is
// closed.
type gatedStore struct {
	*memory.Store
	mu      sync.Mutex
	release chan struct{}
	held    chan struct{}
}

func (g *gatedStore) holdNextRead() (held <-chan struct{}, release chan<- struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release = make(chan struct{})
	g.held = make(chan struct{}, 1)
	return g.held, g.release
}

func (g *gatedStore) ListExpenses(ctx context.Context, f storage.Filter) ([]core.ExpenseRecord, error) {
	g.mu.Lock()
	release, held := g.release, g.held
	g.release = nil
	g.mu.Unlock()
	if release != nil {
		held <- struct{}{}
		<-release
	}
	return g.Store.ListExpenses(ctx, f)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, memory.New())
}

func newTestServerWith(t *testing.T, store storage.Store) *testServer {
	t.Helper()
	m := metrics.New()

	tokens := auth.NewJWTManager(testSecret, time.Hour)
	identity := auth.NewIdentity(store)
	identity.OnAuthStateChange(services.NewProvisioner(store, services.BuiltinDefaults()).Listen)
	passwords := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)

	summary := services.NewSummaryService(store, 100, time.Minute, m)
	taxonomy := services.NewTaxonomyService(store, summary)
	records := services.NewRecordService(store, nil, summary, m)
	summary.UseCarryover(services.NewCarryoverService(store, taxonomy, nil, summary, m))

	logs := &syncBuffer{}
	srv := NewServer(":0", Deps{
		Auth:     services.NewAuthService(passwords, tokens, identity),
		Tokens:   tokens,
		Taxonomy: taxonomy,
		Records:  records,
		Summary:  summary,
		Backend:  store,
		Metrics:  m,
	}, Options{
		CORSOrigins:        []string{"https://app.example.com"},
		RateLimitPerMinute: 1000,
		Now:                func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
		Logger:             log.New(log.Config{Format: "json", Component: log.ComponentHTTP, Writer: logs}),
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return &testServer{Server: ts, srv: srv, store: store, logs: logs}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) signUp(t *testing.T, email string) services.Session {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"`+email+`","password":"correct horse","display_name":"Ana"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[services.Session](t, resp)
}

func (ts *testServer) taxonID(t *testing.T, token, path, name string) string {
	t.Helper()
	resp := ts.do(t, http.MethodGet, path, token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, tx := range decode[listResponse[core.Taxon]](t, resp).Items {
		if tx.Name == name {
			return tx.ID
		}
	}
	t.Fatalf("%s has no %q", path, name)
	return ""
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "kharcha_http_requests_total")
}

func TestServer_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/auth/me", "/api/income", "/api/summary/month", "/api/categories"} {
		resp := ts.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := ts.do(t, http.MethodGet, "/api/income", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication required", decode[errorResponse](t, resp).Error)
}

func TestServer_AuthFlow(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signUp(t, "ana@example.com")

	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"ana@example.com","password":"correct horse"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"bo@example.com","password":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[services.Session](t, resp)

	resp = ts.do(t, http.MethodGet, "/api/auth/me", login.Token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sess.User.ID, decode[core.User](t, resp).ID)

	resp = ts.do(t, http.MethodPost, "/api/auth/logout", login.Token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/api/auth/me", login.Token, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/auth/me", sess.Token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "other sessions stay valid")
}

func TestServer_Taxonomy(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "ana@example.com").Token

	resp := ts.do(t, http.MethodGet, "/api/account-types", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[listResponse[core.Taxon]](t, resp).Items, 2)

	resp = ts.do(t, http.MethodPost, "/api/categories", token, `{"name":"  Travel "}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[core.Taxon](t, resp)
	assert.Equal(t, "Travel", created.Name)

	resp = ts.do(t, http.MethodPost, "/api/categories", token, `{"name":"food"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "case-insensitive duplicate of Food")

	resp = ts.do(t, http.MethodPost, "/api/categories", token, `{"name":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "name", decode[errorResponse](t, resp).Field)

	resp = ts.do(t, http.MethodPost, "/api/categories", token, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/api/categories/"+created.ID, token, `{"name":"Trips"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Trips", decode[core.Taxon](t, resp).Name)

	resp = ts.do(t, http.MethodDelete, "/api/categories/"+created.ID, token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, "/api/categories/"+created.ID, token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RequestLoggerInContext(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "ana@example.com").Token

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/categories", strings.NewReader(`{"name":`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rejected map[string]any
	for _, line := range strings.Split(strings.TrimSpace(ts.logs.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "Request rejected" {
			rejected = entry
		}
	}
	require.NotNil(t, rejected, "logs: %s", ts.logs.String())
	assert.Equal(t, log.ComponentHTTP, rejected[log.FieldComponent])
	assert.Equal(t, "req-42", rejected[log.FieldRequestID])
	assert.Equal(t, "/api/categories", rejected[log.FieldPath])
	assert.EqualValues(t, http.StatusBadRequest, rejected[log.FieldStatusCode])
}

func TestServer_RecordsAndSummary(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "ana@example.com").Token
	salary := ts.taxonID(t, token, "/api/income-sources", "Salary")
	food := ts.taxonID(t, token, "/api/categories", "Food")

	resp := ts.do(t, http.MethodPost, "/api/income", token,
		`{"amount":"1000.00","date":"2025-02-03","source_id":"`+salary+`","account_type":"bank"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	income := decode[core.IncomeRecord](t, resp)
	assert.Equal(t, "Bank", income.AccountType, "account name resolved to its canonical spelling")

	resp = ts.do(t, http.MethodPost, "/api/expenses", token,
		`{"amount":40000,"date":"2025-02-10","category_id":"`+food+`","account_type":"Bank","item":"Groceries"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	expense := decode[core.ExpenseRecord](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/expenses", token,
		`{"amount":"-5","date":"2025-02-10","account_type":"Bank","item":"Bad"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/api/expenses/"+expense.ID, token, `{"item":"Market"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Market", decode[core.ExpenseRecord](t, resp).Item)

	resp = ts.do(t, http.MethodGet, "/api/expenses?year=2025&month=2", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[listResponse[core.ExpenseRecord]](t, resp).Items, 1)

	// March (the server's "now") carries February's Bank surplus of 600.
	resp = ts.do(t, http.MethodGet, "/api/summary/month", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	march := decode[core.MonthSummary](t, resp)
	assert.True(t, march.CarryoverApplied)
	assert.Equal(t, int64(60000), march.IncomeTotal.Cents)

	resp = ts.do(t, http.MethodGet, "/api/income?year=2025&month=3", token, "")
	rows := decode[listResponse[core.IncomeRecord]](t, resp).Items
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-03", rows[0].CarryoverPeriod)
	assert.Equal(t, "2025-03-01", rows[0].Date.String())

	resp = ts.do(t, http.MethodGet, "/api/summary/year?year=2025", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	year := decode[core.YearSummary](t, resp)
	assert.Equal(t, int64(160000), year.IncomeTotal.Cents)
	assert.Equal(t, int64(40000), year.ExpenseTotal.Cents)

	resp = ts.do(t, http.MethodGet, "/api/summary/month?month=13", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/income/"+income.ID, token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_UsersAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	ana := ts.signUp(t, "ana@example.com").Token
	bo := ts.signUp(t, "bo@example.com").Token
	salary := ts.taxonID(t, ana, "/api/income-sources", "Salary")

	resp := ts.do(t, http.MethodPost, "/api/income", ana,
		`{"amount":100,"date":"2025-03-02","source_id":"`+salary+`","account_type":"Cash"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	row := decode[core.IncomeRecord](t, resp)

	resp = ts.do(t, http.MethodGet, "/api/income?year=2025&month=3", bo, "")
	assert.Empty(t, decode[listResponse[core.IncomeRecord]](t, resp).Items)

	resp = ts.do(t, http.MethodDelete, "/api/income/"+row.ID, bo, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/income", bo,
		`{"amount":100,"date":"2025-03-02","source_id":"`+salary+`","account_type":"Cash"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "another user's source is unknown")
}

func TestServer_Export(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "ana@example.com").Token

	resp := ts.do(t, http.MethodGet, "/api/export?year=2025&month=3", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "kharcha-2025-03.xlsx")
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, len(body) > 0 && string(body[:2]) == "PK", "xlsx is a zip archive")
}

func TestServer_CORS(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/income", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

type result struct {
	status int
	body   string
	err    error
}

// send issues a summary request off the test goroutine.
func (ts *testServer) send(path, token, session string) <-chan result {
	out := make(chan result, 1)
	go func() {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		if err != nil {
			out <- result{err: err}
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if session != "" {
			req.Header.Set(SessionHeader, session)
		}
		resp, err := ts.Client().Do(req)
		if err != nil {
			out <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		out <- result{status: resp.StatusCode, body: string(b)}
	}()
	return out
}

func TestServer_SupersededSummary(t *testing.T) {
	store := &gatedStore{Store: memory.New()}
	ts := newTestServerWith(t, store)
	token := ts.signUp(t, "ana@example.com").Token

	// A views month m and B views m+1 while A is still reading.
	overlap := func(m int, sessionA, sessionB string) (a, b result) {
		t.Helper()
		held, release := store.holdNextRead()
		first := ts.send(fmt.Sprintf("/api/summary/month?year=2025&month=%d", m), token, sessionA)
		select {
		case <-held:
		case <-time.After(5 * time.Second):
			t.Fatal("first request never reached the store")
		}
		b = <-ts.send(fmt.Sprintf("/api/summary/month?year=2025&month=%d", m+1), token, sessionB)
		close(release)
		a = <-first
		require.NoError(t, a.err)
		require.NoError(t, b.err)
		return a, b
	}

	a, b := overlap(3, "", "")
	assert.Equal(t, http.StatusOK, b.status)
	assert.Equal(t, http.StatusConflict, a.status)
	assert.Contains(t, a.body, "superseded")

	a, b = overlap(5, "tab-1", "tab-2")
	assert.Equal(t, http.StatusOK, b.status)
	assert.Equal(t, http.StatusOK, a.status, "separate tabs keep their own views")
	assert.Contains(t, a.body, "May 2025")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errMalformed, http.StatusBadRequest},
		{auth.ErrNotAuthenticated, http.StatusUnauthorized},
		{core.Invalid("amount", core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{core.Invalid("name", core.ErrDuplicateName), http.StatusConflict},
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrConflict, http.StatusConflict},
		{services.ErrCarryoverInsert, http.StatusBadGateway},
		{errSuperseded, http.StatusConflict},
		{fmt.Errorf("snapshot: %w", context.Canceled), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		got, msg := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
	_, msg := statusFor(errors.New("secret dsn"))
	assert.NotContains(t, msg, "secret")
}
