// Package client drives the SRUN portal protocol. Client exposes one method
// per network step; Attempt sequences them for a login or a logout and keeps
// the values each step hands to the next.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/atinyakov/srun-login/internal/codec"
	"github.com/atinyakov/srun-login/internal/digest"
	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"github.com/atinyakov/srun-login/internal/models"
	"github.com/atinyakov/srun-login/internal/response"
	"github.com/atinyakov/srun-login/internal/transport"
	"go.uber.org/zap"
)

// Portal endpoints, relative to the server URL.
const (
	PathStatus    = "/cgi-bin/rad_user_info"
	PathChallenge = "/cgi-bin/get_challenge"
	PathAcID      = "/index_1.html"
	PathPortal    = "/cgi-bin/srun_portal"
)

// Step names used in errors, logs and history records.
const (
	StepProbe          = "probe"
	StepQueryStatus    = "query_status"
	StepFetchChallenge = "fetch_challenge"
	StepResolveAcID    = "resolve_ac_id"
	StepLogin          = "login"
	StepLogout         = "logout"
)

const (
	// Callback is the JSONP callback name sent with every request. The portal
	// echoes it and nothing reads it back.
	Callback = "jQuery1124_srun"

	// DefaultRedirectHost answers 204 on an open network.
	DefaultRedirectHost = "http://www.google.cn/generate_204"
)

var acIDPattern = regexp.MustCompile(`ac_id=(\d+)`)

// Doer performs one GET. *transport.Transport implements it.
type Doer interface {
	Get(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Options tune the requests a Client sends.
type Options struct {
	// RedirectHost is probed before login when an Attempt asks for it.
	RedirectHost string
	// OS and Name identify the client platform in login requests.
	OS   string
	Name string
	// Codec tunes the auth blob encoding.
	Codec codec.Options
}

// Client sends portal requests for one server. It keeps no per-attempt state.
type Client struct {
	server *url.URL
	doer   Doer
	opts   Options
	log    *zap.Logger
}

// New returns a Client for the portal at server.
func New(server string, doer Doer, opts Options, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", server)
	}
	if doer == nil {
		return nil, fmt.Errorf("client: nil transport")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RedirectHost == "" {
		opts.RedirectHost = DefaultRedirectHost
	}
	if opts.OS == "" {
		opts.OS = "Windows 10"
	}
	if opts.Name == "" {
		opts.Name = "Windows"
	}
	return &Client{server: u, doer: doer, opts: opts, log: log}, nil
}

func (c *Client) endpoint(path string) string {
	return c.server.ResolveReference(&url.URL{Path: path}).String()
}

// get sends one request and checks the status code.
func (c *Client) get(ctx context.Context, step, rawURL string, params transport.Params, noRedirect bool, want int) (*transport.Response, error) {
	resp, err := c.doer.Get(ctx, transport.Request{URL: rawURL, Params: params, NoRedirect: noRedirect})
	if err != nil {
		return nil, &srunerr.StepError{Step: step, Err: err}
	}
	c.log.Debug("portal answered", zap.String("step", step), zap.Int("status", resp.StatusCode))
	if resp.StatusCode != want {
		return nil, &srunerr.StepError{Step: step, Err: &srunerr.UnexpectedStatusError{Expected: want, Actual: resp.StatusCode}}
	}
	return resp, nil
}

// Probe requests the redirect-test URL without following redirects. Some
// gateways only answer the portal correctly after such a request. It reports
// whether the answer was 204, which means the network is already open.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	resp, err := c.doer.Get(ctx, transport.Request{URL: c.opts.RedirectHost, NoRedirect: true})
	if err != nil {
		return false, &srunerr.StepError{Step: StepProbe, Err: err}
	}
	return resp.StatusCode == http.StatusNoContent, nil
}

// QueryStatus fetches the client's online status. An offline client is not
// an error; the record still carries online_ip.
func (c *Client) QueryStatus(ctx context.Context) (*response.Status, error) {
	params := transport.Params{}.Add("callback", Callback)
	resp, err := c.get(ctx, StepQueryStatus, c.endpoint(PathStatus), params, false, http.StatusOK)
	if err != nil {
		return nil, err
	}
	status, err := response.ParseStatus(string(resp.Body))
	if err != nil {
		return nil, &srunerr.StepError{Step: StepQueryStatus, Err: err}
	}
	return status, nil
}

// FetchChallenge asks for a fresh challenge for username at ip.
func (c *Client) FetchChallenge(ctx context.Context, username, ip string) (*response.Challenge, error) {
	if username == "" || ip == "" {
		return nil, &srunerr.StepError{Step: StepFetchChallenge, Err: srunerr.ErrMissingCredentials}
	}
	params := transport.Params{}.
		Add("callback", Callback).
		Add("username", username).
		Add("ip", ip)
	resp, err := c.get(ctx, StepFetchChallenge, c.endpoint(PathChallenge), params, false, http.StatusOK)
	if err != nil {
		return nil, err
	}
	ch, err := response.ParseChallenge(string(resp.Body))
	if err != nil {
		return nil, &srunerr.StepError{Step: StepFetchChallenge, Err: err}
	}
	if !ch.OK() {
		return nil, &srunerr.StepError{Step: StepFetchChallenge, Err: &srunerr.RejectedError{Code: ch.Error, Message: ch.ErrorMsg.Or("")}}
	}
	return ch, nil
}

// ResolveAcID reads ac_id from the Location of the portal's 302 answer.
func (c *Client) ResolveAcID(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, StepResolveAcID, c.endpoint(PathAcID), nil, true, http.StatusFound)
	if err != nil {
		return "", err
	}
	acID, err := ExtractAcID(resp.Location())
	if err != nil {
		return "", &srunerr.StepError{Step: StepResolveAcID, Err: err}
	}
	return acID, nil
}

// ExtractAcID returns the digits following "ac_id=" in a Location value.
func ExtractAcID(location string) (string, error) {
	if location == "" {
		return "", srunerr.ErrMissingLocationHeader
	}
	m := acIDPattern.FindStringSubmatch(location)
	if m == nil {
		return "", srunerr.ErrAcIDPatternNotFound
	}
	return m[1], nil
}

// LoginParams are the values a login needs, all from the same attempt.
type LoginParams struct {
	Challenge   string
	Session     models.Session
	Credentials models.Credentials
}

// Login sends the challenge-response login.
func (c *Client) Login(ctx context.Context, p LoginParams) (*response.LoginResult, error) {
	creds, sess := p.Credentials, p.Session
	if creds.Username == "" || creds.Password == "" || p.Challenge == "" || sess.OnlineIP == "" || sess.AcID == "" {
		return nil, &srunerr.StepError{Step: StepLogin, Err: srunerr.ErrMissingCredentials}
	}

	hmd5 := digest.PasswordHash([]byte(creds.Password), p.Challenge)
	info, err := codec.NewAuthBlob(creds.Username, creds.Password, sess.OnlineIP, sess.AcID).Encode(p.Challenge, c.opts.Codec)
	if err != nil {
		return nil, &srunerr.StepError{Step: StepLogin, Err: srunerr.Wrapf(err, "encode auth blob")}
	}
	chksum := digest.Checksum(digest.ChecksumParams{
		Challenge:    p.Challenge,
		Username:     creds.Username,
		PasswordHash: hmd5,
		AcID:         sess.AcID,
		IP:           sess.OnlineIP,
		AuthCode:     info,
	})

	params := transport.Params{}.
		Add("callback", Callback).
		Add("action", "login").
		Add("username", creds.Username).
		Add("password", "{MD5}"+hmd5).
		Add("os", c.opts.OS).
		Add("name", c.opts.Name).
		Add("double_stack", "0").
		Add("chksum", chksum).
		Add("info", info).
		Add("ac_id", sess.AcID).
		Add("ip", sess.OnlineIP).
		Add("n", digest.DefaultN).
		Add("type", digest.DefaultType)

	resp, err := c.get(ctx, StepLogin, c.endpoint(PathPortal), params, false, http.StatusOK)
	if err != nil {
		return nil, err
	}
	res, err := response.ParseLogin(string(resp.Body))
	if err != nil {
		return nil, &srunerr.StepError{Step: StepLogin, Err: err}
	}
	return res, nil
}

// Logout ends the session of username at the given session identity.
func (c *Client) Logout(ctx context.Context, sess models.Session, username string) (*response.LogoutResult, error) {
	if username == "" || sess.OnlineIP == "" || sess.AcID == "" {
		return nil, &srunerr.StepError{Step: StepLogout, Err: srunerr.ErrMissingCredentials}
	}
	params := transport.Params{}.
		Add("callback", Callback).
		Add("action", "logout").
		Add("username", username).
		Add("ac_id", sess.AcID).
		Add("ip", sess.OnlineIP)

	resp, err := c.get(ctx, StepLogout, c.endpoint(PathPortal), params, false, http.StatusOK)
	if err != nil {
		return nil, err
	}
	res, err := response.ParseLogout(string(resp.Body))
	if err != nil {
		return nil, &srunerr.StepError{Step: StepLogout, Err: err}
	}
	return res, nil
}
