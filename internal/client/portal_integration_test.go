package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atinyakov/srun-login/internal/client"
	"github.com/atinyakov/srun-login/internal/codec"
	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"github.com/atinyakov/srun-login/internal/models"
	portalhttp "github.com/atinyakov/srun-login/internal/server/handler/http"
	"github.com/atinyakov/srun-login/internal/service"
	"github.com/atinyakov/srun-login/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newPortal starts a fake portal that checks the password hash, the info
// blob and the checksum the way a real one does.
func newPortal(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()
	svc := service.NewPortalService("7", map[string]string{"student01": "p@ss&word"}, time.Minute)
	srv := httptest.NewServer(portalhttp.NewRouter(&portalhttp.PortalHandler{PortalService: svc}, zap.NewNop()))
	t.Cleanup(srv.Close)

	tr, err := transport.New(transport.Config{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	c, err := client.New(srv.URL, tr, client.Options{RedirectHost: srv.URL + "/generate_204"}, zap.NewNop())
	require.NoError(t, err)
	return srv, c
}

func TestFakePortal_LoginQueryLogout(t *testing.T) {
	_, c := newPortal(t)
	ctx := context.Background()

	st, err := c.NewAttempt(client.AttemptOptions{}).Query(ctx)
	require.NoError(t, err)
	assert.False(t, st.OK())
	assert.Equal(t, "127.0.0.1", st.OnlineIP)

	res, err := c.NewAttempt(client.AttemptOptions{Probe: true}).
		Login(ctx, models.Credentials{Username: "student01", Password: "p@ss&word"})
	require.NoError(t, err)
	require.True(t, res.OK(), "portal refused login: %s", res.ErrorMsg.Or(""))
	assert.Equal(t, "login_ok", res.SucMsg.Or(""))

	st, err = c.NewAttempt(client.AttemptOptions{}).Query(ctx)
	require.NoError(t, err)
	assert.True(t, st.OK())
	assert.Equal(t, "student01", st.UserName.Or(""))
	assert.True(t, st.SumBytes.Present())

	out, err := c.NewAttempt(client.AttemptOptions{}).Logout(ctx, "student01")
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestFakePortal_WrongPassword(t *testing.T) {
	_, c := newPortal(t)

	res, err := c.NewAttempt(client.AttemptOptions{}).
		Login(context.Background(), models.Credentials{Username: "student01", Password: "guess"})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "E2901", res.Ecode.Or(""))
}

func TestFakePortal_TrimmedEncodingIsRejected(t *testing.T) {
	srv, _ := newPortal(t)
	tr, err := transport.New(transport.Config{}, nil)
	require.NoError(t, err)
	c, err := client.New(srv.URL, tr, client.Options{Codec: codec.Options{TrimToLength: true}}, nil)
	require.NoError(t, err)

	a := c.NewAttempt(client.AttemptOptions{})
	res, err := a.Login(context.Background(), models.Credentials{Username: "student01", Password: "p@ss&word"})

	// a mixed length word lands in the 4 accepted values once in ~2^30 challenges
	require.ErrorIs(t, err, srunerr.ErrLengthOutOfRange)
	assert.Nil(t, res)
	var se *srunerr.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, client.StepLogin, se.Step)
	assert.Equal(t, client.StateFailed, a.State())
}
