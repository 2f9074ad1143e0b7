package client

import (
	"context"
	"time"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"github.com/atinyakov/srun-login/internal/models"
	"github.com/atinyakov/srun-login/internal/response"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the progress of an Attempt.
type State int

const (
	StateIdle State = iota
	StateProbed
	StateQueried
	StateChallenged
	StateAcIDResolved
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbed:
		return "probed"
	case StateQueried:
		return "queried"
	case StateChallenged:
		return "challenged"
	case StateAcIDResolved:
		return "ac_id_resolved"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Recorder stores finished attempts. *repository.PostgresAttemptRepository implements it.
type Recorder interface {
	Record(ctx context.Context, a models.Attempt) error
}

// AttemptOptions configure a single Attempt.
type AttemptOptions struct {
	// Probe requests the redirect-test URL before login.
	Probe bool
	// Recorder, when set, receives the attempt record once it finishes.
	Recorder Recorder
}

// Attempt runs one login, logout or query. Values obtained by one step are
// only passed to later steps of the same Attempt, and an Attempt runs once.
type Attempt struct {
	ID string

	client    *Client
	opts      AttemptOptions
	log       *zap.Logger
	state     State
	step      string
	session   models.Session
	probed    bool
	open      bool
	used      bool
	startedAt time.Time
}

// NewAttempt starts a fresh attempt with a new UUID.
func (c *Client) NewAttempt(opts AttemptOptions) *Attempt {
	id := uuid.NewString()
	return &Attempt{
		ID:     id,
		client: c,
		opts:   opts,
		log:    c.log.With(zap.String("attempt_id", id)),
		state:  StateIdle,
	}
}

// State reports how far the attempt got.
func (a *Attempt) State() State { return a.state }

// Session returns the online IP and ac_id learned so far.
func (a *Attempt) Session() models.Session { return a.session }

// NetworkOpen reports the probe answer. ok is false when no probe ran.
func (a *Attempt) NetworkOpen() (open, ok bool) { return a.open, a.probed }

func (a *Attempt) begin() error {
	if a.used {
		return srunerr.ErrAttemptUsed
	}
	a.used = true
	a.startedAt = time.Now().UTC()
	return nil
}

func (a *Attempt) enter(step string) {
	a.step = step
	a.log.Debug("step started", zap.String("step", step))
}

func (a *Attempt) advance(s State) {
	a.state = s
	a.log.Info("step done", zap.String("step", a.step), zap.Stringer("state", s))
}

func (a *Attempt) fail(err error) error {
	a.state = StateFailed
	a.log.Warn("attempt failed", zap.String("step", a.step), zap.Error(err))
	return err
}

// Login runs [probe], status, challenge, ac_id and login, in that order.
// The first failing step aborts the attempt.
func (a *Attempt) Login(ctx context.Context, creds models.Credentials) (res *response.LoginResult, err error) {
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer func() {
		var portalErr string
		if res != nil {
			portalErr = res.Error
		}
		a.finish(ctx, models.ActionLogin, portalErr, err)
	}()

	a.log.Info("login started", zap.Stringer("credentials", creds))
	if creds.Username == "" || creds.Password == "" {
		a.step = StepLogin
		return nil, a.fail(&srunerr.StepError{Step: StepLogin, Err: srunerr.ErrMissingCredentials})
	}

	if a.opts.Probe {
		a.enter(StepProbe)
		open, err := a.client.Probe(ctx)
		if err != nil {
			return nil, a.fail(err)
		}
		a.probed, a.open = true, open
		a.log.Debug("probe answered", zap.Bool("network_open", open))
		a.advance(StateProbed)
	}

	a.enter(StepQueryStatus)
	status, err := a.client.QueryStatus(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.session.OnlineIP = status.OnlineIP
	a.advance(StateQueried)

	a.enter(StepFetchChallenge)
	ch, err := a.client.FetchChallenge(ctx, creds.Username, a.session.OnlineIP)
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StateChallenged)

	a.enter(StepResolveAcID)
	acID, err := a.client.ResolveAcID(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.session.AcID = acID
	a.advance(StateAcIDResolved)

	a.enter(StepLogin)
	res, err = a.client.Login(ctx, LoginParams{
		Challenge:   ch.Challenge,
		Session:     a.session,
		Credentials: creds,
	})
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StateCompleted)
	return res, nil
}

// Logout runs status, ac_id and logout, in that order.
func (a *Attempt) Logout(ctx context.Context, username string) (res *response.LogoutResult, err error) {
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer func() {
		var portalErr string
		if res != nil {
			portalErr = res.Error
		}
		a.finish(ctx, models.ActionLogout, portalErr, err)
	}()

	a.log.Info("logout started", zap.String("username", username))
	if username == "" {
		a.step = StepLogout
		return nil, a.fail(&srunerr.StepError{Step: StepLogout, Err: srunerr.ErrMissingCredentials})
	}

	a.enter(StepQueryStatus)
	status, err := a.client.QueryStatus(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.session.OnlineIP = status.OnlineIP
	a.advance(StateQueried)

	a.enter(StepResolveAcID)
	acID, err := a.client.ResolveAcID(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.session.AcID = acID
	a.advance(StateAcIDResolved)

	a.enter(StepLogout)
	res, err = a.client.Logout(ctx, a.session, username)
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StateCompleted)
	return res, nil
}

// Query runs the status step alone.
func (a *Attempt) Query(ctx context.Context) (status *response.Status, err error) {
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer func() {
		var portalErr string
		if status != nil {
			portalErr = status.Error
		}
		a.finish(ctx, models.ActionQuery, portalErr, err)
	}()

	a.enter(StepQueryStatus)
	status, err = a.client.QueryStatus(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.session.OnlineIP = status.OnlineIP
	a.advance(StateCompleted)
	return status, nil
}

// record builds the history record for the attempt so far.
func (a *Attempt) record(action models.Action, portalErr string, err error) models.Attempt {
	rec := models.Attempt{
		ID:          a.ID,
		Action:      action,
		Step:        a.step,
		OnlineIP:    a.session.OnlineIP,
		AcID:        a.session.AcID,
		PortalError: portalErr,
		StartedAt:   a.startedAt,
		FinishedAt:  time.Now().UTC(),
	}
	switch {
	case err != nil:
		rec.Outcome = models.OutcomeFailed
		rec.Error = err.Error()
		var rej *srunerr.RejectedError
		if srunerr.As(err, &rej) {
			rec.PortalError = rej.Code
		}
	case portalErr == response.ErrorOK:
		rec.Outcome = models.OutcomeOK
	default:
		rec.Outcome = models.OutcomeRejected
	}
	return rec
}

func (a *Attempt) finish(ctx context.Context, action models.Action, portalErr string, err error) {
	if a.opts.Recorder == nil {
		return
	}
	rec := a.record(action, portalErr, err)
	// a cancelled attempt is still worth recording
	if rerr := a.opts.Recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		a.log.Warn("failed to record attempt", zap.Error(rerr))
	}
}
