// Command authcli drives the login and signup forms against a running authd.
//
//	authcli signup
//	authcli login [-callback /deals]
//	authcli whoami -token <token>
//	authcli logout -token <token>
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/client"
	"github.com/pitchlink/authkit/form"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return flag.ErrHelp
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("url", envOr("AUTH_BASE_URL", "http://localhost:3000"), "auth service base URL")
	token := fs.String("token", os.Getenv("AUTH_TOKEN"), "session token")
	callback := fs.String("callback", "", "post login destination")
	timeout := fs.Duration("timeout", 0, "request timeout, 0 waits forever")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	c := client.New(*baseURL, client.WithTimeout(*timeout))
	ui := &terminal{in: bufio.NewReader(stdin), fd: int(stdin.Fd()), out: stdout, err: stderr}

	switch args[0] {
	case "signup":
		return signup(ctx, c, ui)
	case "login":
		return login(ctx, c, ui, *callback)
	case "whoami":
		return whoami(ctx, c, ui, *token)
	case "logout":
		return logout(ctx, c, ui, *token)
	default:
		usage(stderr)
		return flag.ErrHelp
	}
}

func signup(ctx context.Context, c *client.Client, ui *terminal) error {
	f := form.NewSignupForm(c, ui, ui)
	f.Name = ui.prompt("Name")
	f.Email = ui.prompt("Email")
	f.Password = ui.secret("Password")
	f.Confirm = ui.secret("Confirm password")
	f.Role = auth.Role(strings.ToLower(ui.prompt("Role (startup/investor)")))

	err := f.Submit(ctx)
	for field, msg := range f.Errors() {
		fmt.Fprintf(ui.err, "  %s: %s\n", field, msg)
	}
	return err
}

func login(ctx context.Context, c *client.Client, ui *terminal, callback string) error {
	page := form.Links.Login
	if callback != "" {
		page += "?" + form.CallbackQueryKey + "=" + url.QueryEscape(callback)
	}

	facade := &tokenCapture{Facade: c}
	f := form.NewLoginForm(page, facade, ui, ui)
	f.Email = ui.prompt("Email")
	f.Password = ui.secret("Password")

	if err := f.Submit(ctx); err != nil {
		return err
	}
	fmt.Fprintln(ui.out, facade.token)
	return nil
}

func whoami(ctx context.Context, c *client.Client, ui *terminal, token string) error {
	s, err := c.GetSession(ctx, token)
	if err != nil {
		ui.Error(err.Error())
		return err
	}
	fmt.Fprintf(ui.out, "%s <%s> %s, expires %s\n",
		s.User.Name, s.User.Email, s.User.Role, s.Session.ExpiresAt.Format(time.RFC3339))
	return nil
}

func logout(ctx context.Context, c *client.Client, ui *terminal, token string) error {
	if err := c.SignOut(ctx, token); err != nil {
		ui.Error(err.Error())
		return err
	}
	ui.Success("Signed out")
	return nil
}

// tokenCapture keeps the token from a successful sign in so it can be printed
type tokenCapture struct {
	form.Facade
	token string
}

func (t *tokenCapture) SignInWithPassword(ctx context.Context, req client.SignInRequest) (*client.Session, error) {
	s, err := t.Facade.SignInWithPassword(ctx, req)
	if err == nil {
		t.token = s.Token
	}
	return s, err
}

// terminal is the Navigator and Notifier for the CLI
type terminal struct {
	in  *bufio.Reader
	fd  int
	out io.Writer
	err io.Writer
}

func (t *terminal) Push(path string) {
	fmt.Fprintf(t.err, "-> %s\n", path)
}

func (t *terminal) Success(message string) {
	fmt.Fprintln(t.err, message)
}

func (t *terminal) Error(message string) {
	fmt.Fprintln(t.err, "error:", message)
}

func (t *terminal) prompt(label string) string {
	fmt.Fprintf(t.err, "%s: ", label)
	line, _ := t.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// secret reads without echo when stdin is a terminal
func (t *terminal) secret(label string) string {
	if !term.IsTerminal(t.fd) {
		return t.prompt(label)
	}
	fmt.Fprintf(t.err, "%s: ", label)
	raw, err := term.ReadPassword(t.fd)
	fmt.Fprintln(t.err)
	if err != nil {
		return ""
	}
	return string(raw)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: authcli <signup|login|whoami|logout> [-url URL] [-token TOKEN] [-callback PATH] [-timeout DUR]")
}
