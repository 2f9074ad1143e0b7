package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/atinyakov/srun-login/internal/codec"
	"github.com/atinyakov/srun-login/internal/digest"
	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"github.com/atinyakov/srun-login/internal/models"
	"github.com/atinyakov/srun-login/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testServer    = "http://portal.test"
	testChallenge = "8f5e0b0c4d7a6e3f2b1c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a"
)

type handlerFunc func(req transport.Request) (*transport.Response, error)

type fakeDoer struct {
	routes map[string]handlerFunc
	calls  []transport.Request
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{routes: map[string]handlerFunc{}}
}

func (f *fakeDoer) on(path string, h handlerFunc) *fakeDoer {
	f.routes[path] = h
	return f
}

func (f *fakeDoer) Get(_ context.Context, req transport.Request) (*transport.Response, error) {
	f.calls = append(f.calls, req)
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	h, ok := f.routes[u.Path]
	if !ok {
		return nil, fmt.Errorf("unexpected request to %s", u.Path)
	}
	return h(req)
}

func (f *fakeDoer) paths() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		u, _ := url.Parse(c.URL)
		out = append(out, u.Path)
	}
	return out
}

func jsonp(body string) handlerFunc {
	return func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(Callback + "(" + body + ")")}, nil
	}
}

func status(code int) handlerFunc {
	return func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: code, Header: http.Header{}}, nil
	}
}

func redirect(location string) handlerFunc {
	return func(transport.Request) (*transport.Response, error) {
		h := http.Header{}
		if location != "" {
			h.Set("Location", location)
		}
		return &transport.Response{StatusCode: http.StatusFound, Header: h}, nil
	}
}

func portal() *fakeDoer {
	return newFakeDoer().
		on("/generate_204", status(http.StatusNoContent)).
		on(PathStatus, jsonp(`{"error":"not_online_error","online_ip":"10.0.0.5","client_ip":"10.0.0.5"}`)).
		on(PathChallenge, jsonp(`{"error":"ok","challenge":"`+testChallenge+`","client_ip":"10.0.0.5","expire":"60"}`)).
		on(PathAcID, redirect("/srun_portal_pc?ac_id=7&theme=pro")).
		on(PathPortal, jsonp(`{"error":"ok","suc_msg":"login_ok","online_ip":"10.0.0.5"}`))
}

func newTestClient(t *testing.T, d Doer) *Client {
	t.Helper()
	c, err := New(testServer, d, Options{}, zap.NewNop())
	require.NoError(t, err)
	return c
}

type memRecorder struct {
	records []models.Attempt
	err     error
}

func (m *memRecorder) Record(_ context.Context, a models.Attempt) error {
	m.records = append(m.records, a)
	return m.err
}

func TestNew(t *testing.T) {
	_, err := New("://bad", newFakeDoer(), Options{}, nil)
	assert.Error(t, err)

	_, err = New("portal.test", newFakeDoer(), Options{}, nil)
	assert.Error(t, err)

	_, err = New(testServer, nil, Options{}, nil)
	assert.Error(t, err)

	c, err := New(testServer, newFakeDoer(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRedirectHost, c.opts.RedirectHost)
	assert.Equal(t, "Windows 10", c.opts.OS)
	assert.Equal(t, "Windows", c.opts.Name)
}

func TestAttempt_LoginSuccess(t *testing.T) {
	d := portal()
	rec := &memRecorder{}
	c := newTestClient(t, d)

	a := c.NewAttempt(AttemptOptions{Probe: true, Recorder: rec})
	res, err := a.Login(context.Background(), models.Credentials{Username: "student01", Password: "p@ss&word"})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "login_ok", res.SucMsg.Or(""))
	assert.Equal(t, StateCompleted, a.State())
	assert.Equal(t, models.Session{OnlineIP: "10.0.0.5", AcID: "7"}, a.Session())
	open, probed := a.NetworkOpen()
	assert.True(t, probed)
	assert.True(t, open)

	assert.Equal(t, []string{"/generate_204", PathStatus, PathChallenge, PathAcID, PathPortal}, d.paths())
	assert.True(t, d.calls[0].NoRedirect)
	assert.True(t, d.calls[3].NoRedirect)

	ch := d.calls[2].Params
	assert.Equal(t, "student01", ch.Get("username"))
	assert.Equal(t, "10.0.0.5", ch.Get("ip"))

	login := d.calls[4].Params
	keys := make([]string, 0, len(login))
	for _, p := range login {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"callback", "action", "username", "password", "os", "name", "double_stack", "chksum", "info", "ac_id", "ip", "n", "type"}, keys)

	hmd5 := digest.PasswordHash([]byte("p@ss&word"), testChallenge)
	info, err := codec.NewAuthBlob("student01", "p@ss&word", "10.0.0.5", "7").Encode(testChallenge, codec.Options{})
	require.NoError(t, err)
	assert.Equal(t, "{MD5}"+hmd5, login.Get("password"))
	assert.Equal(t, info, login.Get("info"))
	assert.Equal(t, digest.Checksum(digest.ChecksumParams{
		Challenge:    testChallenge,
		Username:     "student01",
		PasswordHash: hmd5,
		AcID:         "7",
		IP:           "10.0.0.5",
		AuthCode:     info,
	}), login.Get("chksum"))
	assert.Equal(t, "7", login.Get("ac_id"))
	assert.Equal(t, "10.0.0.5", login.Get("ip"))
	assert.Equal(t, "200", login.Get("n"))
	assert.Equal(t, "1", login.Get("type"))

	require.Len(t, rec.records, 1)
	r := rec.records[0]
	assert.Equal(t, a.ID, r.ID)
	assert.Equal(t, models.ActionLogin, r.Action)
	assert.Equal(t, models.OutcomeOK, r.Outcome)
	assert.Equal(t, StepLogin, r.Step)
	assert.Equal(t, "7", r.AcID)
	assert.Empty(t, r.Error)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
}

func TestAttempt_LoginWithoutProbe(t *testing.T) {
	d := portal()
	a := newTestClient(t, d).NewAttempt(AttemptOptions{})
	_, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{PathStatus, PathChallenge, PathAcID, PathPortal}, d.paths())
	_, probed := a.NetworkOpen()
	assert.False(t, probed)
}

func TestAttempt_LoginRejected(t *testing.T) {
	d := portal().on(PathPortal, jsonp(`{"error":"login_error","ecode":"E2901","error_msg":"E2901: (Third party 1)bind_user2: ldap_bind error","res":"login_error"}`))
	rec := &memRecorder{}
	a := newTestClient(t, d).NewAttempt(AttemptOptions{Recorder: rec})

	res, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "E2901", res.Ecode.Or(""))

	require.Len(t, rec.records, 1)
	assert.Equal(t, models.OutcomeRejected, rec.records[0].Outcome)
	assert.Equal(t, "login_error", rec.records[0].PortalError)
}

func TestAttempt_StatusFailureStopsAttempt(t *testing.T) {
	d := portal().on(PathStatus, status(http.StatusInternalServerError))
	rec := &memRecorder{}
	a := newTestClient(t, d).NewAttempt(AttemptOptions{Recorder: rec})

	_, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	var se *srunerr.UnexpectedStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusOK, se.Expected)
	assert.Equal(t, http.StatusInternalServerError, se.Actual)

	var step *srunerr.StepError
	require.ErrorAs(t, err, &step)
	assert.Equal(t, StepQueryStatus, step.Step)

	assert.Equal(t, []string{PathStatus}, d.paths())
	assert.Equal(t, StateFailed, a.State())

	require.Len(t, rec.records, 1)
	assert.Equal(t, models.OutcomeFailed, rec.records[0].Outcome)
	assert.Equal(t, StepQueryStatus, rec.records[0].Step)
}

func TestAttempt_ChallengeRejected(t *testing.T) {
	d := portal().on(PathChallenge, jsonp(`{"error":"challenge_expire_error","error_msg":"expired"}`))
	rec := &memRecorder{}
	a := newTestClient(t, d).NewAttempt(AttemptOptions{Recorder: rec})

	_, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	var rej *srunerr.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "challenge_expire_error", rej.Code)
	assert.Equal(t, "expired", rej.Message)
	assert.Equal(t, []string{PathStatus, PathChallenge}, d.paths())

	require.Len(t, rec.records, 1)
	assert.Equal(t, "challenge_expire_error", rec.records[0].PortalError)
	assert.Equal(t, models.OutcomeFailed, rec.records[0].Outcome)
}

func TestAttempt_MissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds models.Credentials
	}{
		{"no username", models.Credentials{Password: "p"}},
		{"no password", models.Credentials{Username: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := portal()
			a := newTestClient(t, d).NewAttempt(AttemptOptions{Probe: true})
			_, err := a.Login(context.Background(), tt.creds)
			assert.ErrorIs(t, err, srunerr.ErrMissingCredentials)
			assert.Empty(t, d.calls)
		})
	}

	d := portal()
	a := newTestClient(t, d).NewAttempt(AttemptOptions{})
	_, err := a.Logout(context.Background(), "")
	assert.ErrorIs(t, err, srunerr.ErrMissingCredentials)
	assert.Empty(t, d.calls)
}

func TestAttempt_SingleUse(t *testing.T) {
	a := newTestClient(t, portal()).NewAttempt(AttemptOptions{})
	_, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)

	_, err = a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	assert.ErrorIs(t, err, srunerr.ErrAttemptUsed)
	_, err = a.Logout(context.Background(), "u")
	assert.ErrorIs(t, err, srunerr.ErrAttemptUsed)
	_, err = a.Query(context.Background())
	assert.ErrorIs(t, err, srunerr.ErrAttemptUsed)
}

func TestAttempt_Logout(t *testing.T) {
	d := portal().on(PathStatus, jsonp(`{"error":"ok","online_ip":"10.0.0.5","user_name":"u","sum_bytes":1024}`))
	a := newTestClient(t, d).NewAttempt(AttemptOptions{Probe: true})

	res, err := a.Logout(context.Background(), "u")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{PathStatus, PathAcID, PathPortal}, d.paths())

	p := d.calls[2].Params
	assert.Equal(t, "logout", p.Get("action"))
	assert.Equal(t, "u", p.Get("username"))
	assert.Equal(t, "7", p.Get("ac_id"))
	assert.Equal(t, "10.0.0.5", p.Get("ip"))
	assert.Len(t, p, 5)
}

func TestAttempt_Query(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	a := newTestClient(t, portal()).NewAttempt(AttemptOptions{Recorder: rec})

	st, err := a.Query(context.Background())
	require.NoError(t, err)
	assert.False(t, st.OK())
	assert.Equal(t, "10.0.0.5", st.OnlineIP)

	require.Len(t, rec.records, 1)
	assert.Equal(t, models.ActionQuery, rec.records[0].Action)
	assert.Equal(t, models.OutcomeRejected, rec.records[0].Outcome)
}

func TestAttempt_TransportError(t *testing.T) {
	boom := &srunerr.TransportError{Op: "GET", URL: testServer, Err: errors.New("connection refused")}
	d := portal().on("/generate_204", func(transport.Request) (*transport.Response, error) { return nil, boom })
	a := newTestClient(t, d).NewAttempt(AttemptOptions{Probe: true})

	_, err := a.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	var te *srunerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Len(t, d.calls, 1)
}

func TestResolveAcID(t *testing.T) {
	tests := []struct {
		name    string
		handler handlerFunc
		want    string
		wantErr error
	}{
		{"absolute location", redirect("https://portal.example/?ac_id=5&theme=pro"), "5", nil},
		{"relative location", redirect("/srun_portal_pc?ac_id=12"), "12", nil},
		{"no ac_id", redirect("https://portal.example/"), "", srunerr.ErrAcIDPatternNotFound},
		{"no location", redirect(""), "", srunerr.ErrMissingLocationHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, newFakeDoer().on(PathAcID, tt.handler))
			got, err := c.ResolveAcID(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("not a redirect", func(t *testing.T) {
		c := newTestClient(t, newFakeDoer().on(PathAcID, status(http.StatusOK)))
		_, err := c.ResolveAcID(context.Background())
		var se *srunerr.UnexpectedStatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusFound, se.Expected)
		assert.Equal(t, http.StatusOK, se.Actual)
	})
}

func TestProbe(t *testing.T) {
	c := newTestClient(t, newFakeDoer().on("/generate_204", status(http.StatusNoContent)))
	open, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, open)

	c = newTestClient(t, newFakeDoer().on("/generate_204", redirect("http://portal.test/")))
	open, err = c.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, open)
}

func TestLogin_RequiresSession(t *testing.T) {
	d := newFakeDoer()
	c := newTestClient(t, d)
	_, err := c.Login(context.Background(), LoginParams{
		Challenge:   testChallenge,
		Credentials: models.Credentials{Username: "u", Password: "p"},
		Session:     models.Session{OnlineIP: "10.0.0.5"},
	})
	assert.ErrorIs(t, err, srunerr.ErrMissingCredentials)
	assert.Empty(t, d.calls)
}

func TestQueryStatus_BadEnvelope(t *testing.T) {
	c := newTestClient(t, newFakeDoer().on(PathStatus, func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte("<html>portal</html>")}, nil
	}))
	_, err := c.QueryStatus(context.Background())
	var fe *srunerr.EnvelopeFormatError
	assert.ErrorAs(t, err, &fe)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "ac_id_resolved", StateAcIDResolved.String())
	assert.Equal(t, "unknown", State(99).String())
}
