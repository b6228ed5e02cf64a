package auth

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AuthService is what the HTTP controller needs from Service
type AuthService interface {
	SignUp(ctx context.Context, cmd SignUpCommand) (*IssuedSession, error)
	SignIn(ctx context.Context, cmd SignInCommand) (*IssuedSession, error)
	SignInSocial(ctx context.Context, cmd SocialCommand) (*SocialRedirect, error)
	GetSession(ctx context.Context, token string) (*SessionView, error)
	SignOut(ctx context.Context, token string) error
}

// SessionResponse is returned after a successful sign up or sign in
type SessionResponse struct {
	Token    string      `json:"token"`
	User     SessionUser `json:"user"`
	Session  SessionInfo `json:"session"`
	URL      string      `json:"url,omitempty"`
	Redirect bool        `json:"redirect"`
}

// SignOutResponse is returned by the sign out route
type SignOutResponse struct {
	Success bool `json:"success"`
}

type HTTPControllerRoutes struct {
	SignUpEmail  string
	SignInEmail  string
	SignInSocial string
	GetSession   string
	SignOut      string
}

type HTTPController struct {
	Debug   bool
	Logger  Logger
	Service AuthService
	Auther  *RouteAuthenticator
	Routes  *HTTPControllerRoutes
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(h *HTTPController) *HTTPController {
		h.Debug = debug
		return h
	}
}

func WithControllerLogger(l Logger) HTTPControllerOption {
	return func(h *HTTPController) *HTTPController {
		h.Logger = normalizeLogger(l)
		h.Auther.WithLogger(h.Logger)
		return h
	}
}

func NewHTTPController(service AuthService, cfg Config, opts ...HTTPControllerOption) *HTTPController {
	h := &HTTPController{
		Logger:  defLogger{},
		Service: service,
		Auther:  NewRouteAuthenticator(service, cfg),
		Routes: &HTTPControllerRoutes{
			SignUpEmail:  "/sign-up/email",
			SignInEmail:  "/sign-in/email",
			SignInSocial: "/sign-in/social",
			GetSession:   "/get-session",
			SignOut:      "/sign-out",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			h = opt(h)
		}
	}

	return h
}

// RegisterAuthRoutes mounts the controller on app, usually the /api/auth group
func RegisterAuthRoutes[T any](app router.Router[T], service AuthService, cfg Config, opts ...HTTPControllerOption) *HTTPController {
	h := NewHTTPController(service, cfg, opts...)

	app.Post(h.Routes.SignUpEmail, h.SignUpEmail).SetName("auth.sign-up.email")
	app.Post(h.Routes.SignInEmail, h.SignInEmail).SetName("auth.sign-in.email")
	app.Post(h.Routes.SignInSocial, h.SignInSocial).SetName("auth.sign-in.social")
	app.Get(h.Routes.GetSession, h.GetSession).SetName("auth.get-session")
	app.Post(h.Routes.SignOut, h.SignOut).SetName("auth.sign-out")

	return h
}

func (h *HTTPController) SignUpEmail(c router.Context) error {
	var cmd SignUpCommand
	if err := h.parse(c, &cmd); err != nil {
		return WriteError(c, err, h.Logger)
	}

	cmd.CallbackURL = SanitizeCallbackURL(cmd.CallbackURL, "")
	cmd.IPAddress = ClientIP(c)
	cmd.UserAgent = c.Header(headerUserAgent)

	if h.Debug {
		h.Logger.Debug("sign up request", "payload", print.MaybePrettyJSON(map[string]any{
			"name":  cmd.Name,
			"email": cmd.Email,
			"role":  cmd.Role,
		}))
	}

	issued, err := h.Service.SignUp(c.Context(), cmd)
	if err != nil {
		return WriteError(c, err, h.Logger)
	}

	h.Auther.SetSessionCookie(c, issued)
	return c.JSON(http.StatusOK, sessionResponse(issued))
}

func (h *HTTPController) SignInEmail(c router.Context) error {
	var cmd SignInCommand
	if err := h.parse(c, &cmd); err != nil {
		return WriteError(c, err, h.Logger)
	}

	cmd.CallbackURL = SanitizeCallbackURL(cmd.CallbackURL, DefaultCallbackURL)
	cmd.IPAddress = ClientIP(c)
	cmd.UserAgent = c.Header(headerUserAgent)

	if h.Debug {
		h.Logger.Debug("sign in request", "payload", print.MaybePrettyJSON(map[string]any{
			"email":       cmd.Email,
			"callbackURL": cmd.CallbackURL,
			"rememberMe":  cmd.RememberMe,
		}))
	}

	issued, err := h.Service.SignIn(c.Context(), cmd)
	if err != nil {
		return WriteError(c, err, h.Logger)
	}

	h.Auther.SetSessionCookie(c, issued)
	return c.JSON(http.StatusOK, sessionResponse(issued))
}

func (h *HTTPController) SignInSocial(c router.Context) error {
	var cmd SocialCommand
	if err := h.parse(c, &cmd); err != nil {
		return WriteError(c, err, h.Logger)
	}

	cmd.CallbackURL = SanitizeCallbackURL(cmd.CallbackURL, DefaultCallbackURL)
	cmd.ErrorCallbackURL = SanitizeCallbackURL(cmd.ErrorCallbackURL, "")
	cmd.NewUserCallbackURL = SanitizeCallbackURL(cmd.NewUserCallbackURL, "")

	redirect, err := h.Service.SignInSocial(c.Context(), cmd)
	if err != nil {
		return WriteError(c, err, h.Logger)
	}
	return c.JSON(http.StatusOK, redirect)
}

func (h *HTTPController) GetSession(c router.Context) error {
	token := h.Auther.TokenFromRequest(c)
	if token == "" {
		return WriteError(c, ErrSessionNotFound, h.Logger)
	}

	view, err := h.Service.GetSession(c.Context(), token)
	if err != nil {
		if Classify(err) == KindRejection {
			h.Auther.ClearSessionCookie(c)
		}
		return WriteError(c, err, h.Logger)
	}
	return c.JSON(http.StatusOK, view)
}

// SignOut always clears the cookie, even when the session is already gone
func (h *HTTPController) SignOut(c router.Context) error {
	token := h.Auther.TokenFromRequest(c)
	h.Auther.ClearSessionCookie(c)

	if token == "" {
		return c.JSON(http.StatusOK, SignOutResponse{Success: true})
	}

	if err := h.Service.SignOut(c.Context(), token); err != nil {
		if Classify(err) == KindInfrastructure {
			return WriteError(c, err, h.Logger)
		}
		h.Logger.Debug("sign out with stale session", "error", err)
	}
	return c.JSON(http.StatusOK, SignOutResponse{Success: true})
}

func (h *HTTPController) parse(c router.Context, out any) error {
	if err := c.Bind(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)
	}
	return nil
}

func sessionResponse(issued *IssuedSession) SessionResponse {
	return SessionResponse{
		Token:   issued.Token,
		User:    issued.User,
		Session: issued.Session,
		URL:     issued.CallbackURL,
	}
}
