// Package transport performs the portal's HTTP GETs: query parameters in
// order, optional local address or interface binding, custom TLS trust and a
// redirect policy chosen per request.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
	"go.uber.org/zap"
)

// DefaultUserAgent mimics a desktop browser; some gateways refuse unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config is fixed at construction and read-only afterwards.
type Config struct {
	// Interface binds outgoing connections to the first IPv4 address of the
	// named interface, or its first IPv6 address when it has no IPv4 one.
	Interface string
	// LocalAddr binds outgoing connections to an explicit local IP. It wins over Interface.
	LocalAddr string
	// Timeout bounds each request; zero means no limit.
	Timeout time.Duration
	// InsecureSkipVerify accepts any portal certificate.
	InsecureSkipVerify bool
	// CAFile adds a PEM bundle to the trusted roots.
	CAFile string
	// FollowRedirects lets requests that do not set NoRedirect follow 3xx answers.
	FollowRedirects bool
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
}

// Request is one GET.
type Request struct {
	URL    string
	Params Params
	// NoRedirect returns a 3xx answer as is, whatever Config.FollowRedirects says.
	NoRedirect bool
}

// Response is what the portal answered.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Location returns the Location header.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Transport sends portal requests. It is safe for sequential and concurrent use.
type Transport struct {
	follow    *http.Client
	direct    *http.Client
	followAll bool
	userAgent string
	log       *zap.Logger
}

// New builds a Transport from cfg.
func New(cfg Config, log *zap.Logger) (*Transport, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tlsConfig, err := newTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	local, err := resolveLocalAddr(cfg)
	if err != nil {
		return nil, err
	}
	if local != nil {
		dialer.LocalAddr = local
		log.Debug("binding local address", zap.String("interface", cfg.Interface), zap.Stringer("addr", local))
	}

	rt := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Transport{
		follow: &http.Client{Transport: rt, Timeout: cfg.Timeout},
		direct: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		followAll: cfg.FollowRedirects,
		userAgent: ua,
		log:       log,
	}, nil
}

// Get sends req and reads the whole body. Only failures that produce no HTTP
// response are returned as errors; every status code is a Response.
func (t *Transport) Get(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &srunerr.TransportError{Op: "GET", URL: req.URL, Err: err}
	}
	if len(req.Params) > 0 {
		if u.RawQuery != "" {
			u.RawQuery += "&" + req.Params.Encode()
		} else {
			u.RawQuery = req.Params.Encode()
		}
	}
	// the query may carry the password hash and the auth blob
	safeURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &srunerr.TransportError{Op: "GET", URL: safeURL, Err: err}
	}
	httpReq.Header.Set("User-Agent", t.userAgent)

	client := t.direct
	if t.followAll && !req.NoRedirect {
		client = t.follow
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		// *url.Error repeats the full URL, query included
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		t.log.Debug("request failed", zap.String("url", safeURL), zap.Error(err))
		return nil, &srunerr.TransportError{Op: "GET", URL: safeURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &srunerr.TransportError{Op: "read body", URL: safeURL, Err: err}
	}

	t.log.Debug("request done",
		zap.String("url", safeURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func newTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool, err := x509.SystemCertPool()
	if err != nil || caPool == nil {
		caPool = x509.NewCertPool()
	}
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA cert %s", cfg.CAFile)
	}
	tlsConfig.RootCAs = caPool
	return tlsConfig, nil
}
