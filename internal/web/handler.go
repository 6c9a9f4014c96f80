package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/service"
)

const (
	sessionCookie = "infestor_session"
	stateCookie   = "infestor_oauth_state"
	stateTTL      = 10 * time.Minute
)

// User facing messages rendered next to the form
const (
	msgInvalidGiftCode = "Invalid gift code."
	msgInvalidUsername = "Invalid username"
	msgUsernameTaken   = "Username is already taken."
	msgBroadcast       = "Error broadcasting the create_claimed_account transaction."
	msgNoPending       = "There are no accounts left to give away right now. Please try again later."
	msgNoMana          = "The creator account is out of resource credits. Please try again later."
	msgInternal        = "Something went wrong. Please try again later."
)

// EnvFactory builds the workflow environment for one request
type EnvFactory func(ctx context.Context) *service.Env

// IdentityProvider authenticates users for the gift code page
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Handler serves the public pages
type Handler struct {
	envFor   EnvFactory
	sessions *SessionManager
	identity IdentityProvider
	siteURL  string
	secure   bool
	logger   *zap.Logger
}

// HandlerConfig collects what the handler needs
type HandlerConfig struct {
	EnvFor   EnvFactory
	Sessions *SessionManager
	// Identity may be nil, which disables login and the gift code page
	Identity     IdentityProvider
	SiteURL      string
	SecureCookie bool
	Logger       *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		envFor:   cfg.EnvFor,
		sessions: cfg.Sessions,
		identity: cfg.Identity,
		siteURL:  strings.TrimRight(cfg.SiteURL, "/"),
		secure:   cfg.SecureCookie,
		logger:   logger,
	}
}

func (h *Handler) loginEnabled() bool {
	return h.identity != nil && h.sessions != nil
}

// Index renders the redemption form. A gift_code query parameter prefills the
// form and is checked up front.
func (h *Handler) Index(c *gin.Context) {
	data := gin.H{
		"Title":        "Create your account",
		"GiftCode":     c.Query("gift_code"),
		"LoginEnabled": h.loginEnabled(),
	}

	if code := c.Query("gift_code"); code != "" {
		valid, err := h.envFor(c.Request.Context()).Store.CodeIsValid(c.Request.Context(), code)
		if err != nil {
			_ = c.Error(err)
			data["Error"] = msgInternal
			c.HTML(http.StatusInternalServerError, "create_account.html", data)
			return
		}
		if !valid {
			data["Error"] = msgInvalidGiftCode
		}
	}

	c.HTML(http.StatusOK, "create_account.html", data)
}

// Redeem creates the account and consumes the gift code
func (h *Handler) Redeem(c *gin.Context) {
	code := strings.TrimSpace(c.PostForm("gift_code"))
	if code == "" {
		code = strings.TrimSpace(c.Query("gift_code"))
	}
	username := strings.TrimSpace(c.PostForm("username"))

	data := gin.H{
		"Title":        "Create your account",
		"GiftCode":     code,
		"Username":     username,
		"LoginEnabled": h.loginEnabled(),
	}

	res, err := h.envFor(c.Request.Context()).RedeemGiftCode(c.Request.Context(), code, username)
	if err != nil {
		status, msg := redemptionError(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		data["Error"] = msg
		c.HTML(status, "create_account.html", data)
		return
	}

	c.HTML(http.StatusOK, "success.html", gin.H{
		"Title":    "Account created",
		"Username": res.Name,
		"Password": res.Keys.Master,
		"Keys":     displayKeys(&res.Keys),
	})
}

// Success renders the bare confirmation page
func (h *Handler) Success(c *gin.Context) {
	c.HTML(http.StatusOK, "success.html", gin.H{"Title": "Account created"})
}

// Login redirects to the identity provider
func (h *Handler) Login(c *gin.Context) {
	state := uuid.NewString()
	h.setCookie(c, stateCookie, state, stateTTL)
	c.Redirect(http.StatusFound, h.identity.AuthCodeURL(state))
}

// Callback completes the OAuth flow and starts a session
func (h *Handler) Callback(c *gin.Context) {
	state, err := c.Cookie(stateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		c.String(http.StatusBadRequest, "invalid login state")
		return
	}
	h.setCookie(c, stateCookie, "", -1)

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "missing authorization code")
		return
	}

	username, err := h.identity.Exchange(c.Request.Context(), code)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusBadGateway, "login failed")
		return
	}

	token, err := h.sessions.Issue(username)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, msgInternal)
		return
	}
	h.setCookie(c, sessionCookie, token, h.sessions.ttl)

	h.logger.Info("user logged in", zap.String("username", username))
	c.Redirect(http.StatusFound, "/gift-codes")
}

// GiftCodes mints the logged in user's allowance and lists their codes
func (h *Handler) GiftCodes(c *gin.Context) {
	token, err := c.Cookie(sessionCookie)
	if err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	claims, err := h.sessions.Parse(token)
	if err != nil {
		h.setCookie(c, sessionCookie, "", -1)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	codes, err := h.envFor(c.Request.Context()).IssueGiftCodes(c.Request.Context(), claims.Username)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, msgInternal)
		return
	}

	rows := make([]gin.H, 0, len(codes))
	for _, gc := range codes {
		rows = append(rows, gin.H{
			"Code":  gc.Code,
			"Valid": gc.IsValid(),
			"Link":  h.siteURL + "/?gift_code=" + url.QueryEscape(gc.Code),
		})
	}

	c.HTML(http.StatusOK, "gift_codes.html", gin.H{
		"Title":    "Your gift codes",
		"Username": claims.Username,
		"Codes":    rows,
	})
}

// Logout drops the session cookie
func (h *Handler) Logout(c *gin.Context) {
	h.setCookie(c, sessionCookie, "", -1)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.secure, true)
}

func redemptionError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingCode), errors.Is(err, service.ErrInvalidGiftCode):
		return http.StatusOK, msgInvalidGiftCode
	case errors.Is(err, service.ErrMissingAccountName), errors.Is(err, service.ErrInvalidUsername):
		return http.StatusOK, msgInvalidUsername
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusOK, msgUsernameTaken
	case errors.Is(err, service.ErrNoPendingClaimedAccounts):
		return http.StatusServiceUnavailable, msgNoPending
	case errors.Is(err, service.ErrInsufficientMana):
		return http.StatusServiceUnavailable, msgNoMana
	case errors.Is(err, service.ErrBroadcast):
		return http.StatusBadGateway, msgBroadcast
	}
	return http.StatusInternalServerError, msgInternal
}

type keyRow struct {
	Role    keys.Role
	Public  string
	Private string
}

func displayKeys(ks *keys.KeySet) []keyRow {
	pairs := ks.Pairs()
	rows := make([]keyRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, keyRow{Role: p.Role, Public: p.Public, Private: p.Private})
	}
	return rows
}
