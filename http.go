package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultCookieName is the session cookie used when Config does not name one
const DefaultCookieName = "session_token"

// ClientIPLocalsKey is where CaptureClientIP stores the client address
const ClientIPLocalsKey = "auth_client_ip"

const (
	callbackQueryKey = "callbackUrl"
	bearerScheme     = "Bearer"

	headerAccept        = "Accept"
	headerRequestedWith = "X-Requested-With"
	headerForwardedFor  = "X-Forwarded-For"
	headerRealIP        = "X-Real-Ip"
	headerUserAgent     = "User-Agent"

	mimeJSON = "application/json"
	mimeHTML = "text/html"
)

// SessionResolver turns a session token into a session
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*SessionView, error)
}

// ErrorResponse is the JSON body returned for every failed auth request
type ErrorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// RouteAuthenticator owns the session cookie and protects routes
type RouteAuthenticator struct {
	resolver   SessionResolver
	cookieName string
	secure     bool
	loginPath  string
	apiPrefix  string
	Logger     Logger
	// AuthErrorHandler runs when a protected route has no valid session
	AuthErrorHandler router.ErrorHandler
}

func NewRouteAuthenticator(resolver SessionResolver, cfg Config) *RouteAuthenticator {
	name := cfg.GetCookieName()
	if name == "" {
		name = DefaultCookieName
	}

	a := &RouteAuthenticator{
		resolver:   resolver,
		cookieName: name,
		secure:     cfg.GetSecureCookies(),
		loginPath:  LoginPath,
		apiPrefix:  "/api/",
		Logger:     defLogger{},
	}
	a.AuthErrorHandler = a.defaultAuthErrHandler
	return a
}

// WithLogger sets the logger and returns the authenticator
func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(l)
	return a
}

// WithLoginPath changes where page requests are sent without a session
func (a *RouteAuthenticator) WithLoginPath(path string) *RouteAuthenticator {
	if path != "" {
		a.loginPath = path
	}
	return a
}

func (a *RouteAuthenticator) CookieName() string {
	return a.cookieName
}

// ProtectedRoute resolves the session from the cookie or bearer header. The
// session lands in the request locals and in the request context.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token := a.TokenFromRequest(c)
			if token == "" {
				return a.AuthErrorHandler(c, ErrSessionNotFound)
			}

			view, err := a.resolver.GetSession(c.Context(), token)
			if err != nil {
				return a.AuthErrorHandler(c, err)
			}

			c.Locals(SessionLocalsKey, view)
			c.SetContext(WithSession(c.Context(), view))
			return next(c)
		}
	}
}

// RequireSession guards routes so only signed in users reach them
func RequireSession(resolver SessionResolver, cfg Config, logger Logger) router.MiddlewareFunc {
	return NewRouteAuthenticator(resolver, cfg).WithLogger(logger).ProtectedRoute()
}

// TokenFromRequest reads the session cookie, falling back to an
// Authorization bearer header
func (a *RouteAuthenticator) TokenFromRequest(c router.Context) string {
	if token := strings.TrimSpace(c.Cookies(a.cookieName)); token != "" {
		return token
	}

	header := strings.TrimSpace(c.Header(router.HeaderAuthorization))
	if len(header) > len(bearerScheme) && strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return strings.TrimSpace(header[len(bearerScheme):])
	}
	return ""
}

// SetSessionCookie writes the session cookie. Without remember me the cookie
// lasts for the browser session only.
func (a *RouteAuthenticator) SetSessionCookie(c router.Context, issued *IssuedSession) {
	cookie := &router.Cookie{
		Name:     a.cookieName,
		Value:    issued.Token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   a.secure,
		SameSite: router.CookieSameSiteLaxMode,
	}
	if issued.RememberMe {
		cookie.Expires = issued.Session.ExpiresAt
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
}

func (a *RouteAuthenticator) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.secure,
		SameSite: router.CookieSameSiteLaxMode,
	})
}

func (a *RouteAuthenticator) isAPIRequest(c router.Context) bool {
	if strings.HasPrefix(c.Path(), a.apiPrefix) {
		return true
	}
	if strings.EqualFold(c.Header(headerRequestedWith), "XMLHttpRequest") {
		return true
	}
	accept := strings.ToLower(c.Header(headerAccept))
	return strings.Contains(accept, mimeJSON) && !strings.Contains(accept, mimeHTML)
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	richErr := AsRichError(err)

	if a.isAPIRequest(c) {
		return WriteError(c, richErr, a.Logger)
	}

	a.Logger.Info("authentication required, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	statusCode := http.StatusSeeOther
	if c.Method() == http.MethodGet {
		statusCode = http.StatusFound
	}
	return c.Redirect(LoginRedirectURL(a.loginPath, c.OriginalURL()), statusCode)
}

// CaptureClientIP stores the fiber resolved client address in the request
// locals so handlers running on router.Context can read it with ClientIP
func CaptureClientIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(ClientIPLocalsKey, c.IP())
		return c.Next()
	}
}

// ClientIP returns the address captured by CaptureClientIP, falling back to
// the proxy headers
func ClientIP(c router.Context) string {
	if ip, ok := c.Locals(ClientIPLocalsKey).(string); ok && ip != "" {
		return ip
	}
	if fwd := c.Header(headerForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(c.Header(headerRealIP))
}

// LoginRedirectURL points at the login page, asking it to come back to target
func LoginRedirectURL(loginPath, target string) string {
	target = SanitizeCallbackURL(target, "")
	if target == "" {
		return loginPath
	}
	return loginPath + "?" + callbackQueryKey + "=" + url.QueryEscape(target)
}

// SanitizeCallbackURL only accepts same origin relative paths. Anything else
// becomes def.
func SanitizeCallbackURL(raw, def string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return def
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return def
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return def
	}
	return raw
}

// WriteError renders err as an ErrorResponse with the status code the rich
// error carries
func WriteError(c router.Context, err error, logger Logger) error {
	richErr := AsRichError(err)
	logger = normalizeLogger(logger)

	status := richErr.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	if Classify(richErr) == KindInfrastructure {
		logger.Error("auth request failed",
			"path", c.Path(),
			"error", richErr.Error(),
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	code := richErr.TextCode
	if code == "" {
		code = goerrors.HTTPStatusToTextCode(status)
	}

	return c.JSON(status, ErrorResponse{
		Code:     code,
		Message:  richErr.Message,
		Category: richErr.Category.String(),
		Fields:   richErr.ValidationMap(),
	})
}

// ErrorHandler is a fiber.ErrorHandler that answers with ErrorResponse bodies
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		ctx := router.NewFiberContext(c, logger)

		var fe *fiber.Error
		if goerrors.As(err, &fe) {
			richErr := goerrors.New(fe.Message, goerrors.HTTPStatusToCategory(fe.Code)).
				WithCode(fe.Code).
				WithTextCode(goerrors.HTTPStatusToTextCode(fe.Code))
			return WriteError(ctx, richErr, logger)
		}
		return WriteError(ctx, err, logger)
	}
}
