package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/database"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/repository"
	"github.com/kkkkikiki/infestor/internal/service"
)

const testCreator = "emrebeyler"

type fakeChain struct {
	mu       sync.Mutex
	accounts map[string]*chain.Account
}

func (f *fakeChain) GetAccount(_ context.Context, name string) (*chain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[name]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeChain) AccountExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[name]
	return ok, nil
}

func (f *fakeChain) GetRCInfo(context.Context, string) (*chain.RCInfo, error) {
	return &chain.RCInfo{Account: testCreator, CurrentMana: 50_000_000, MaxMana: 100_000_000, CurrentManaPercent: 50}, nil
}

func (f *fakeChain) EstimateCost(context.Context, chain.Operation) (int64, error) {
	return 1_000_000, nil
}

func (f *fakeChain) Broadcast(_ context.Context, op chain.Operation, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if create, ok := op.(*chain.CreateClaimedAccountOperation); ok {
		f.accounts[testCreator].PendingClaimedAccounts--
		f.accounts[create.NewAccountName] = &chain.Account{Name: create.NewAccountName}
	}
	return nil
}

type fakeIdentity struct {
	username string
}

func (f *fakeIdentity) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeIdentity) Exchange(_ context.Context, code string) (string, error) {
	if code != "good-code" {
		return "", assert.AnError
	}
	return f.username, nil
}

type testServer struct {
	engine *gin.Engine
	store  *repository.GiftCodeRepository
	chain  *fakeChain
}

func newTestServer(t *testing.T, rateLimit float64, rateBurst int) *testServer {
	t.Helper()

	db, err := database.NewDB(context.Background(), &config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := repository.NewGiftCodeRepository(db)

	node := &fakeChain{accounts: map[string]*chain.Account{
		testCreator: {Name: testCreator, PendingClaimedAccounts: 5},
		"author":    {Name: "author", Reputation: 1_000_000_000_000, WitnessVotes: []string{testCreator}},
	}}

	tmpl, err := LoadTemplates("")
	require.NoError(t, err)

	handler := NewHandler(HandlerConfig{
		EnvFor: func(context.Context) *service.Env {
			return &service.Env{
				Chain:     node,
				Store:     store,
				Deriver:   keys.NewDeriver(keys.DefaultPrefix),
				Creator:   testCreator,
				ActiveKey: credentials.Static("5JactiveKey"),
				Policy:    service.IssuancePolicy{MinimumReputation: 50, OperatorWitness: testCreator},
			}
		},
		Sessions: NewSessionManager([]byte("test-secret"), time.Hour),
		Identity: &fakeIdentity{username: "author"},
		SiteURL:  "https://infestor.example/",
	})

	engine := Setup(RouterConfig{
		Handler:   handler,
		Templates: tmpl,
		RateLimit: rateLimit,
		RateBurst: rateBurst,
		Logger:    zap.NewNop(),
	})
	return &testServer{engine: engine, store: store, chain: node}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndexRendersForm(t *testing.T) {
	s := newTestServer(t, 0, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Create your account")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NotContains(t, w.Body.String(), msgInvalidGiftCode)
}

func TestIndexChecksPrefilledCode(t *testing.T) {
	s := newTestServer(t, 0, 0)
	_, err := s.store.AddCode(context.Background(), "ABC123", "")
	require.NoError(t, err)

	w := s.do(httptest.NewRequest(http.MethodGet, "/?gift_code=ABC123", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="ABC123"`)
	assert.NotContains(t, w.Body.String(), msgInvalidGiftCode)

	w = s.do(httptest.NewRequest(http.MethodGet, "/?gift_code=NOPE", nil))
	assert.Contains(t, w.Body.String(), msgInvalidGiftCode)
}

func TestRedeemCreatesAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, 0, 0)
	_, err := s.store.AddCode(ctx, "ABC123", "")
	require.NoError(t, err)

	w := s.do(postForm(url.Values{"gift_code": {"ABC123"}, "username": {"newbie"}}))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "newbie is created")
	assert.Contains(t, body, "Master password")
	for _, role := range []string{"posting", "active", "owner", "memo"} {
		assert.Contains(t, body, "<td>"+role+"</td>")
	}

	valid, err := s.store.CodeIsValid(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, valid)

	// the same code cannot be used twice
	w = s.do(postForm(url.Values{"gift_code": {"ABC123"}, "username": {"another"}}))
	assert.Contains(t, w.Body.String(), msgInvalidGiftCode)
}

func TestRedeemRendersInlineErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		username string
		want     string
	}{
		{"unknown code", "NOPE", "newbie", msgInvalidGiftCode},
		{"bad username", "ABC123", "1newbie", msgInvalidUsername},
		{"taken username", "ABC123", "author", msgUsernameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestServer(t, 0, 0)
			_, err := s.store.AddCode(ctx, "ABC123", "")
			require.NoError(t, err)

			w := s.do(postForm(url.Values{"gift_code": {tt.code}, "username": {tt.username}}))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			assert.Contains(t, w.Body.String(), `value="`+tt.username+`"`)

			valid, err := s.store.CodeIsValid(ctx, "ABC123")
			require.NoError(t, err)
			assert.True(t, valid)
		})
	}
}

func TestRedeemIsRateLimited(t *testing.T) {
	s := newTestServer(t, 0.001, 1)

	w := s.do(postForm(url.Values{"gift_code": {"NOPE"}, "username": {"newbie"}}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(postForm(url.Values{"gift_code": {"NOPE"}, "username": {"newbie"}}))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// viewing the form is not limited
	w = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginFlowIssuesGiftCodes(t *testing.T) {
	s := newTestServer(t, 0, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookieValue *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookie {
			stateCookieValue = c
		}
	}
	require.NotNil(t, stateCookieValue)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(stateCookieValue)
	w = s.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/gift-codes", w.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)

	req = httptest.NewRequest(http.MethodGet, "/gift-codes", nil)
	req.AddCookie(session)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Gift codes for author")
	assert.Contains(t, w.Body.String(), "https://infestor.example/?gift_code=")

	count, err := s.store.GetGiftCodeCountByUser(context.Background(), "author")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	s := newTestServer(t, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=good-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})
	w := s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/callback?code=good-code&state=forged", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackExchangeFailure(t *testing.T) {
	s := newTestServer(t, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=bad-code&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	w := s.do(req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGiftCodesRequiresSession(t *testing.T) {
	s := newTestServer(t, 0, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/gift-codes", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/gift-codes", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "garbage"})
	w = s.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoginRoutesDisabledWithoutProvider(t *testing.T) {
	tmpl, err := LoadTemplates("")
	require.NoError(t, err)

	engine := Setup(RouterConfig{
		Handler:   NewHandler(HandlerConfig{EnvFor: func(context.Context) *service.Env { return nil }}),
		Templates: tmpl,
		Logger:    zap.NewNop(),
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoadTemplatesFooterOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footer.html")
	require.NoError(t, os.WriteFile(path, []byte(`<footer>operated by @emrebeyler</footer>`), 0o600))

	tmpl, err := LoadTemplates(path)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, tmpl.ExecuteTemplate(&sb, "success.html", map[string]interface{}{"Title": "t"}))
	assert.Contains(t, sb.String(), "operated by @emrebeyler")
	assert.NotContains(t, sb.String(), "claimed accounts")

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.html"))
	require.Error(t, err)
}
