package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/output"
	"github.com/yndnr/metalgate/internal/core/domain"
)

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Account username",
			EnvVars: []string{"METALGATE_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "Account password (prefer --password-stdin)",
			EnvVars: []string{"METALGATE_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:  "password-stdin",
			Usage: "Read the password from stdin",
		},
	}
}

// RegisterCommand returns the register command.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: append(credentialFlags(),
			&cli.StringFlag{
				Name:  "confirm",
				Usage: "Password confirmation; prompted for when omitted on a terminal",
			},
		),
		Action: registerAction,
	}
}

func registerAction(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	in := newPrompter(c.App.Reader, rt.Err)

	creds, err := readCredentials(c, in)
	if err != nil {
		return err
	}

	confirm := c.String("confirm")
	if !c.IsSet("confirm") {
		if c.IsSet("password") || c.Bool("password-stdin") {
			confirm = creds.Password
		} else if confirm, err = in.ask("Confirm password: "); err != nil {
			return err
		}
	}
	if confirm != creds.Password {
		return domain.ErrValidation.WithDetails("passwords do not match")
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	if err := rt.Session.Register(c.Context, creds); err != nil {
		return err
	}
	rt.Println("Registration successful. Log in with `metalgate-cli login -u %s`.", creds.Username)
	return nil
}

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Sign in and store the session token",
		Flags:  credentialFlags(),
		Action: loginAction,
	}
}

func loginAction(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	creds, err := readCredentials(c, newPrompter(c.App.Reader, rt.Err))
	if err != nil {
		return err
	}

	s, err := rt.Session.Login(c.Context, creds)
	if err != nil {
		return err
	}
	if rt.Format != output.FormatTable {
		return rt.Print(newWhoami(s, rt.Config.Server))
	}
	rt.Println("Logged in as %s", s.Username())
	return nil
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the stored token",
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			// A stored token that no longer resolves still gets cleared.
			if _, err := rt.Authenticate(c.Context); err != nil {
				rt.Session.Logout()
				rt.Println("Logged out")
				return nil
			}
			rt.Session.SignOut(c.Context)
			rt.Println("Logged out")
			return nil
		},
	}
}

type whoami struct {
	Username string `json:"username" yaml:"username"`
	Status   string `json:"status" yaml:"status"`
	Server   string `json:"server" yaml:"server"`
}

func newWhoami(s domain.Session, server string) whoami {
	return whoami{Username: s.Username(), Status: s.Status.String(), Server: server}
}

func (w whoami) Table() *output.Table {
	t := output.NewTable("USERNAME", "STATUS", "SERVER")
	name := w.Username
	if name == "" {
		name = "-"
	}
	t.AddRow(name, w.Status, w.Server)
	return t
}

// WhoamiCommand returns the whoami command.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			s, err := rt.Authenticate(c.Context)
			if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
				return err
			}
			return rt.Print(newWhoami(s, rt.Config.Server))
		},
	}
}

func readCredentials(c *cli.Context, in *prompter) (domain.Credentials, error) {
	var err error
	creds := domain.Credentials{Username: c.String("username")}
	if creds.Username == "" {
		if creds.Username, err = in.ask("Username: "); err != nil {
			return creds, err
		}
	}

	switch {
	case c.Bool("password-stdin"):
		creds.Password, err = in.line()
	case c.IsSet("password"):
		creds.Password = c.String("password")
	default:
		creds.Password, err = in.ask("Password: ")
	}
	if err != nil {
		return creds, err
	}
	if creds.Username == "" || creds.Password == "" {
		return creds, domain.ErrValidation.WithDetails("username and password are required")
	}
	return creds, nil
}

// prompter reads answers line by line from one buffered reader so that
// consecutive prompts share input.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &prompter{r: br, w: w}
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.w, question)
	return p.line()
}

func (p *prompter) line() (string, error) {
	s, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", domain.ErrValidation.WithDetails("no input")
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
