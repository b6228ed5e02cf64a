// Package client is a typed wrapper over the auth HTTP routes.
//
// Every call returns exactly one of a value or an error. Errors are always
// *goerrors.Error: service messages are preserved, transport failures and
// unreadable responses come back as a generic "Something went wrong".
package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/pitchlink/authkit"
)

// DefaultBasePath is where cmd/authd mounts the auth routes
const DefaultBasePath = "/api/auth"

// GenericErrorMessage is reported when no specific message is available
const GenericErrorMessage = "Something went wrong"

type SignInRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackURL,omitempty"`
	RememberMe  bool   `json:"rememberMe"`
}

type SignUpRequest struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
	CallbackURL string    `json:"callbackURL,omitempty"`
}

type SocialRequest struct {
	Provider           string `json:"provider"`
	CallbackURL        string `json:"callbackURL,omitempty"`
	ErrorCallbackURL   string `json:"errorCallbackURL,omitempty"`
	NewUserCallbackURL string `json:"newUserCallbackURL,omitempty"`
}

// Session is a signed in user plus the token that proves it
type Session struct {
	Token   string           `json:"token"`
	User    auth.SessionUser `json:"user"`
	Session auth.SessionInfo `json:"session"`
	URL     string           `json:"url,omitempty"`
}

// Redirect points the browser at a social provider
type Redirect struct {
	URL      string `json:"url"`
	Redirect bool   `json:"redirect"`
}

type Client struct {
	baseURL  string
	basePath string
	timeout  time.Duration
	http     *fiber.Client
}

type Option func(*Client)

// WithBasePath overrides DefaultBasePath
func WithBasePath(path string) Option {
	return func(c *Client) {
		c.basePath = "/" + strings.Trim(path, "/")
	}
}

// WithTimeout bounds each request. Zero, the default, waits forever.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the fiber client, e.g. to set a user agent
func WithHTTPClient(hc *fiber.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client for the service at baseURL, e.g. http://localhost:3000
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		basePath: DefaultBasePath,
		http:     &fiber.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) SignInWithPassword(ctx context.Context, req SignInRequest) (*Session, error) {
	out := &Session{}
	if err := c.do(ctx, fiber.MethodPost, "/sign-in/email", "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SignUpWithPassword(ctx context.Context, req SignUpRequest) (*Session, error) {
	out := &Session{}
	if err := c.do(ctx, fiber.MethodPost, "/sign-up/email", "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SignInWithProvider asks the service where to send the browser for a social login
func (c *Client) SignInWithProvider(ctx context.Context, req SocialRequest) (*Redirect, error) {
	out := &Redirect{}
	if err := c.do(ctx, fiber.MethodPost, "/sign-in/social", "", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession resolves token. The returned Session carries token back.
func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, auth.ErrSessionNotFound
	}

	var view auth.SessionView
	if err := c.do(ctx, fiber.MethodGet, "/get-session", token, nil, &view); err != nil {
		return nil, err
	}
	return &Session{Token: token, User: view.User, Session: view.Session}, nil
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	var out auth.SignOutResponse
	return c.do(ctx, fiber.MethodPost, "/sign-out", token, struct{}{}, &out)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + c.basePath + path
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return auth.AsRichError(err)
	}

	var agent *fiber.Agent
	if method == fiber.MethodGet {
		agent = c.http.Get(c.endpoint(path))
	} else {
		agent = c.http.Post(c.endpoint(path))
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}
	if c.timeout > 0 {
		agent.Timeout(c.timeout)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return transportError(err, c.endpoint(path))
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return transportError(goerrors.Join(errs...), c.endpoint(path))
	}

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return decodeError(status, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return genericError(err, goerrors.CategoryExternal, fiber.StatusBadGateway)
	}
	return nil
}

// decodeError rebuilds the service error from an auth.ErrorResponse body
func decodeError(status int, raw []byte) *goerrors.Error {
	var body auth.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		richErr := goerrors.New(GenericErrorMessage, goerrors.HTTPStatusToCategory(status)).
			WithCode(status).
			WithTextCode(goerrors.HTTPStatusToTextCode(status))
		if err != nil {
			richErr.Source = err
		}
		return richErr
	}

	category := goerrors.Category(body.Category)
	if category == "" {
		category = goerrors.HTTPStatusToCategory(status)
	}

	var richErr *goerrors.Error
	if len(body.Fields) > 0 {
		richErr = goerrors.NewValidationFromMap(body.Message, body.Fields)
		richErr.Category = category
	} else {
		richErr = goerrors.New(body.Message, category)
	}

	textCode := body.Code
	if textCode == "" {
		textCode = goerrors.HTTPStatusToTextCode(status)
	}
	return richErr.WithCode(status).WithTextCode(textCode)
}

func transportError(err error, endpoint string) *goerrors.Error {
	richErr := genericError(err, goerrors.CategoryExternal, fiber.StatusServiceUnavailable)
	if u, perr := url.Parse(endpoint); perr == nil {
		richErr = richErr.WithMetadata(map[string]any{"host": u.Host})
	}
	return richErr
}

func genericError(err error, category goerrors.Category, status int) *goerrors.Error {
	richErr := goerrors.New(GenericErrorMessage, category).
		WithCode(status).
		WithTextCode(goerrors.HTTPStatusToTextCode(status))
	richErr.Source = err
	return richErr
}
