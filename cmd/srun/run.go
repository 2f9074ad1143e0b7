package main

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/atinyakov/srun-login/internal/client"
	"github.com/atinyakov/srun-login/internal/codec"
	"github.com/atinyakov/srun-login/internal/config"
	"github.com/atinyakov/srun-login/internal/db"
	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"github.com/atinyakov/srun-login/internal/logger"
	"github.com/atinyakov/srun-login/internal/models"
	"github.com/atinyakov/srun-login/internal/output"
	"github.com/atinyakov/srun-login/internal/prompt"
	"github.com/atinyakov/srun-login/internal/repository"
	"github.com/atinyakov/srun-login/internal/transport"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// app holds what one command invocation needs.
type app struct {
	options *config.Options
	log     *zap.Logger
	printer *output.Printer
	prompt  *prompt.Prompter

	history *sql.DB
	repo    *repository.PostgresAttemptRepository
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	options, err := config.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		config.Usage(stdout)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "srun: %v\n", err)
		return exitUsage
	}

	if options.ShowVersion {
		fmt.Fprintf(stdout, "srun\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return exitOK
	}

	log := logger.New()
	if err := log.InitWriter(options.LogLevel, stderr); err != nil {
		fmt.Fprintf(stderr, "srun: failed to init logger: %v\n", err)
		return exitUsage
	}
	defer func() { _ = log.Log.Sync() }()

	a := &app{
		options: options,
		log:     log.Log,
		printer: output.New(stdout, options.Output),
		prompt:  prompt.New(stdin, stderr),
	}

	if options.HistoryDSN != "" {
		conn, err := openHistory(ctx, options)
		if err != nil {
			// a broken history store must not keep the user offline
			a.log.Warn("attempt history disabled", zap.Error(err))
		} else {
			defer conn.Close()
			a.history = conn
			a.repo = repository.NewPostgresAttemptRepository(conn)
		}
	}

	if err := a.dispatch(ctx); err != nil {
		fmt.Fprintf(stderr, "srun: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// historyConnectTimeout bounds opening the history store when no request
// timeout is configured.
const historyConnectTimeout = 5 * time.Second

// openHistory connects to the history store within the request timeout, so
// an unreachable database cannot hold up a login on a captive network.
func openHistory(ctx context.Context, options *config.Options) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(options.Timeout.D(), historyConnectTimeout))
	defer cancel()
	return db.InitPostgres(ctx, options.HistoryDSN)
}

// errRejected marks a portal answer other than "ok". It is already printed.
var errRejected = errors.New("portal refused the request")

func (a *app) dispatch(ctx context.Context) error {
	if a.options.Command == config.CommandHistory {
		return a.listHistory(ctx)
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer a.prune(ctx)

	switch a.options.Command {
	case config.CommandQuery:
		return a.query(ctx, c)
	case config.CommandLogin:
		return a.login(ctx, c)
	case config.CommandLogout:
		return a.logout(ctx, c)
	}
	return fmt.Errorf("unknown command: %s", a.options.Command)
}

func (a *app) newClient() (*client.Client, error) {
	o := a.options
	tr, err := transport.New(transport.Config{
		Interface:          o.Interface,
		LocalAddr:          o.LocalAddr,
		Timeout:            o.Timeout.D(),
		InsecureSkipVerify: o.Insecure,
		CAFile:             o.CAFile,
		FollowRedirects:    o.FollowRedirects,
	}, a.log)
	if err != nil {
		return nil, err
	}
	return client.New(o.Server, tr, client.Options{
		RedirectHost: o.RedirectHost,
		Codec:        codec.Options{TrimToLength: o.TrimAuthBlob},
	}, a.log)
}

func (a *app) attemptOptions(probe bool) client.AttemptOptions {
	opts := client.AttemptOptions{Probe: probe}
	if a.repo != nil {
		opts.Recorder = a.repo
	}
	return opts
}

func (a *app) query(ctx context.Context, c *client.Client) error {
	status, err := c.NewAttempt(a.attemptOptions(false)).Query(ctx)
	if err != nil {
		return err
	}
	// an offline client is a valid answer
	return a.printer.Status(status)
}

func (a *app) login(ctx context.Context, c *client.Client) error {
	creds, err := a.credentials()
	if err != nil {
		return err
	}

	attempt := c.NewAttempt(a.attemptOptions(a.options.Redirect))
	res, err := attempt.Login(ctx, creds)
	if open, probed := attempt.NetworkOpen(); probed {
		if perr := a.printer.Probe(open); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if err := a.printer.Login(res); err != nil {
		return err
	}
	if !res.OK() {
		return errRejected
	}
	return nil
}

func (a *app) logout(ctx context.Context, c *client.Client) error {
	username := a.options.Username
	if username == "" {
		return srunerr.Wrapf(srunerr.ErrMissingCredentials, "logout needs a username")
	}
	res, err := c.NewAttempt(a.attemptOptions(false)).Logout(ctx, username)
	if err != nil {
		return err
	}
	if err := a.printer.Logout(res); err != nil {
		return err
	}
	if !res.OK() {
		return errRejected
	}
	return nil
}

// credentials completes the configured account from the terminal.
func (a *app) credentials() (models.Credentials, error) {
	creds := models.Credentials{Username: a.options.Username, Password: a.options.Password}
	if creds.Username != "" && creds.Password != "" {
		return creds, nil
	}
	if !a.prompt.Interactive() {
		return creds, srunerr.Wrapf(srunerr.ErrMissingCredentials, "set username and password or run on a terminal")
	}

	var err error
	if creds.Username == "" {
		if creds.Username, err = a.prompt.Line("Username: "); err != nil {
			return creds, err
		}
	}
	if creds.Password == "" {
		if creds.Password, err = a.prompt.Secret("Password: "); err != nil {
			return creds, err
		}
	}
	return creds, nil
}

func (a *app) listHistory(ctx context.Context) error {
	if a.repo == nil {
		return srunerr.ErrHistoryDisabled
	}
	attempts, err := a.repo.Recent(ctx, a.options.HistoryLimit)
	if err != nil {
		return err
	}
	return a.printer.History(attempts)
}

func (a *app) prune(ctx context.Context) {
	if a.history == nil {
		return
	}
	_, _ = db.PruneAttempts(context.WithoutCancel(ctx), a.history, a.options.HistoryRetention.D(), a.log)
}
