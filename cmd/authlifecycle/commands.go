package main

import (
	"fmt"
	"os"
	"strings"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-print"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// readPassword is a seam for tests.
var readPassword = term.ReadPassword

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "migrate",
			Usage:  "Apply the principals schema",
			Action: withApp(migrateAction),
		},
		{
			Name:  "register",
			Usage: "Create an account and send confirmation instructions",
			Flags: []cli.Flag{
				emailFlag(),
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password, prompted when empty"},
			},
			Action: withApp(registerAction),
		},
		{
			Name:   "invite",
			Usage:  "Create an account without password and mail set password instructions",
			Flags:  []cli.Flag{emailFlag()},
			Action: withApp(inviteAction),
		},
		{
			Name:   "resend",
			Usage:  "Send new confirmation instructions",
			Flags:  []cli.Flag{emailFlag()},
			Action: withApp(resendAction),
		},
		{
			Name:   "confirm",
			Usage:  "Confirm an account with its confirmation token",
			Flags:  []cli.Flag{tokenFlag()},
			Action: withApp(confirmAction),
		},
		{
			Name:   "reset-request",
			Usage:  "Send reset password instructions",
			Flags:  []cli.Flag{emailFlag()},
			Action: withApp(resetRequestAction),
		},
		{
			Name:  "reset",
			Usage: "Set a new password with a reset token",
			Flags: []cli.Flag{
				tokenFlag(),
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "New password, prompted when empty"},
				&cli.BoolFlag{Name: "revoke-sessions", Usage: "Revoke every session of the account"},
			},
			Action: withApp(resetAction),
		},
		{
			Name:  "login",
			Usage: "Check credentials and issue a session token",
			Flags: []cli.Flag{
				emailFlag(),
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password, prompted when empty"},
			},
			Action: withApp(loginAction),
		},
		{
			Name:   "rotate",
			Usage:  "Replace a session token with a new one",
			Flags:  []cli.Flag{tokenFlag()},
			Action: withApp(rotateAction),
		},
		{
			Name:   "logout",
			Usage:  "Revoke a session token",
			Flags:  []cli.Flag{tokenFlag()},
			Action: withApp(logoutAction),
		},
		{
			Name:   "whoami",
			Usage:  "Show the account owning a session token",
			Flags:  []cli.Flag{tokenFlag()},
			Action: withApp(whoamiAction),
		},
	}
}

func emailFlag() cli.Flag {
	return &cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true}
}

func tokenFlag() cli.Flag {
	return &cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "Token", Required: true}
}

func withApp(fn func(c *cli.Context, app *App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadAppConfig(c.String("config"))
		if err != nil {
			return err
		}

		app, err := newApp(cfg, newLogger())
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(c, app)
	}
}

func migrateAction(c *cli.Context, app *App) error {
	if err := auth.Migrate(c.Context, app.db, auth.WithLogger(app.GetLogger("migrations"))); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "migrations applied")
	return nil
}

func registerAction(c *cli.Context, app *App) error {
	password, err := passwordFrom(c)
	if err != nil {
		return err
	}

	handler := auth.NewRegisterAccountHandler(app.lifecycle)
	return handler.Execute(c.Context, auth.RegisterAccountMessage{
		Email:    c.String("email"),
		Password: password,
		OnResponse: func(p *auth.Principal) {
			render(c, p)
		},
	})
}

func inviteAction(c *cli.Context, app *App) error {
	p, err := app.lifecycle.Invite(c.Context, c.String("email"))
	if err != nil {
		return err
	}
	render(c, p)
	return nil
}

func resendAction(c *cli.Context, app *App) error {
	handler := auth.NewConfirmationRequestHandler(app.lifecycle.Confirmations())
	if err := handler.Execute(c.Context, auth.ConfirmationRequestMessage{Email: c.String("email")}); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "confirmation instructions sent")
	return nil
}

func confirmAction(c *cli.Context, app *App) error {
	handler := auth.NewConfirmAccountHandler(app.lifecycle.Confirmations())
	return handler.Execute(c.Context, auth.ConfirmAccountMessage{
		Token: c.String("token"),
		OnResponse: func(acc auth.Account) {
			render(c, acc)
		},
	})
}

func resetRequestAction(c *cli.Context, app *App) error {
	handler := auth.NewInitializePasswordResetHandler(app.lifecycle.Recoveries()).
		WithLogger(app.GetLogger("commands"))
	return handler.Execute(c.Context, auth.InitializePasswordResetMessage{
		Email: c.String("email"),
		OnResponse: func(resp *auth.InitializePasswordResetResponse) {
			fmt.Fprintln(c.App.Writer, "if the account exists, reset instructions were sent")
		},
	})
}

func resetAction(c *cli.Context, app *App) error {
	password, err := passwordFrom(c)
	if err != nil {
		return err
	}

	handler := auth.NewFinalizePasswordResetHandler(app.lifecycle.Recoveries()).
		WithLogger(app.GetLogger("commands"))
	if c.Bool("revoke-sessions") {
		handler = handler.WithSessionRevocation(app.lifecycle.Sessions())
	}

	if err := handler.Execute(c.Context, auth.FinalizePasswordResetMesasge{
		Token:    c.String("token"),
		Password: password,
	}); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "password updated")
	return nil
}

func loginAction(c *cli.Context, app *App) error {
	password, err := passwordFrom(c)
	if err != nil {
		return err
	}

	acc, token, err := app.lifecycle.Authenticate(c.Context, c.String("email"), password)
	if err != nil {
		return err
	}
	render(c, map[string]any{"account_id": acc.AccountID(), "token": token})
	return nil
}

func rotateAction(c *cli.Context, app *App) error {
	current := c.String("token")
	acc, err := app.lifecycle.Sessions().FindByToken(c.Context, current)
	if err != nil {
		return err
	}
	sess, ok := acc.(auth.SessionAuthenticatable)
	if !ok {
		return fmt.Errorf("account %s does not hold sessions", acc.AccountID())
	}

	token, err := app.lifecycle.Sessions().Regenerate(c.Context, sess, current)
	if err != nil {
		return err
	}
	render(c, map[string]any{"account_id": acc.AccountID(), "token": token})
	return nil
}

func logoutAction(c *cli.Context, app *App) error {
	token := c.String("token")
	acc, err := app.lifecycle.Sessions().FindByToken(c.Context, token)
	if err != nil {
		return err
	}
	sess, ok := acc.(auth.SessionAuthenticatable)
	if !ok {
		return fmt.Errorf("account %s does not hold sessions", acc.AccountID())
	}
	if err := app.lifecycle.Sessions().Destroy(c.Context, sess, token); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "session revoked")
	return nil
}

func whoamiAction(c *cli.Context, app *App) error {
	acc, err := app.lifecycle.Sessions().FindByToken(c.Context, c.String("token"))
	if err != nil {
		return err
	}
	render(c, acc)
	return nil
}

func passwordFrom(c *cli.Context) (string, error) {
	if password := c.String("password"); password != "" {
		return password, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func render(c *cli.Context, v any) {
	fmt.Fprintln(c.App.Writer, print.MaybePrettyJSON(v))
}
