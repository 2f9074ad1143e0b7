// Package service implements the portal side of the SRUN protocol for the
// local fake portal: accounts, challenges and online sessions, all in memory.
package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/srun-login/internal/codec"
	"github.com/atinyakov/srun-login/internal/digest"
)

// Portal error codes, as sent in the "error" field.
const (
	CodeOK               = "ok"
	CodeNotOnline        = "not_online_error"
	CodeChallengeExpired = "challenge_expire_error"
	CodeLoginError       = "login_error"
	CodeSignError        = "sign_error"
	CodeLogoutError      = "logout_error"
)

// PortalError is a refusal the portal reports in its answer body.
type PortalError struct {
	Code    string
	Ecode   string
	Message string
}

func (e *PortalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Session is one logged-in client.
type Session struct {
	Username string
	IP       string
	Since    time.Time
	// Bytes is reported as sum_bytes.
	Bytes uint64
}

type challenge struct {
	username string
	token    string
	expires  time.Time
}

// LoginRequest holds the srun_portal action=login parameters as sent.
type LoginRequest struct {
	Username string
	Password string
	Chksum   string
	Info     string
	AcID     string
	IP       string
	N        string
	Type     string
}

// PortalService keeps the portal state. It is safe for concurrent use.
type PortalService struct {
	acID     string
	accounts map[string]string
	ttl      time.Duration
	now      func() time.Time

	mu         sync.Mutex
	challenges map[string]challenge
	sessions   map[string]Session
}

// NewPortalService creates a portal for ac_id acID that accepts the given
// username to password accounts. Challenges expire after ttl.
func NewPortalService(acID string, accounts map[string]string, ttl time.Duration) *PortalService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PortalService{
		acID:       acID,
		accounts:   accounts,
		ttl:        ttl,
		now:        time.Now,
		challenges: map[string]challenge{},
		sessions:   map[string]Session{},
	}
}

// AcID returns the access controller id the portal redirects to.
func (s *PortalService) AcID() string { return s.acID }

// ChallengeTTL is how long an issued challenge stays valid.
func (s *PortalService) ChallengeTTL() time.Duration { return s.ttl }

// Status returns the session of the client at ip.
func (s *PortalService) Status(ip string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ip]
	return sess, ok
}

// IssueChallenge returns a fresh 64-hex-digit challenge for username at ip,
// replacing any earlier one.
func (s *PortalService) IssueChallenge(username, ip string) (string, error) {
	if username == "" || ip == "" {
		return "", &PortalError{Code: CodeChallengeExpired, Message: "missing username or ip"}
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ip] = challenge{username: username, token: token, expires: s.now().Add(s.ttl)}
	return token, nil
}

// Login checks a challenge-response login the way the real portal does: the
// password hash, the encoded info blob and the checksum must all match what
// the account's password and the issued challenge produce. A challenge is
// consumed by the first login that uses it.
func (s *PortalService) Login(req LoginRequest) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[req.IP]
	if !ok || ch.username != req.Username || s.now().After(ch.expires) {
		return Session{}, &PortalError{Code: CodeChallengeExpired, Message: "challenge expired or not issued"}
	}
	delete(s.challenges, req.IP)

	password, ok := s.accounts[req.Username]
	if !ok {
		return Session{}, &PortalError{Code: CodeLoginError, Ecode: "E2531", Message: "E2531: User not found."}
	}
	if req.AcID != s.acID {
		return Session{}, &PortalError{Code: CodeLoginError, Ecode: "E2833", Message: "E2833: Your IP address is not in the dispatcher range."}
	}

	hmd5 := digest.PasswordHash([]byte(password), ch.token)
	if req.Password != "{MD5}"+hmd5 {
		return Session{}, &PortalError{Code: CodeLoginError, Ecode: "E2901", Message: "E2901: (Third party 1)Password is error."}
	}

	info, err := codec.NewAuthBlob(req.Username, password, req.IP, req.AcID).Encode(ch.token, codec.Options{})
	if err != nil {
		return Session{}, err
	}
	if req.Info != info {
		return Session{}, &PortalError{Code: CodeLoginError, Ecode: "E2901", Message: "E2901: info mismatch."}
	}

	sum := digest.Checksum(digest.ChecksumParams{
		Challenge:    ch.token,
		Username:     req.Username,
		PasswordHash: hmd5,
		AcID:         req.AcID,
		IP:           req.IP,
		N:            req.N,
		Type:         req.Type,
		AuthCode:     req.Info,
	})
	if req.Chksum != sum {
		return Session{}, &PortalError{Code: CodeSignError, Message: "sign_error"}
	}

	sess := Session{Username: req.Username, IP: req.IP, Since: s.now()}
	s.sessions[req.IP] = sess
	return sess, nil
}

// Logout ends the session of username at ip.
func (s *PortalService) Logout(username, ip, acID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ip]
	if !ok || sess.Username != username {
		return &PortalError{Code: CodeLogoutError, Message: "You are not online."}
	}
	if acID != s.acID {
		return &PortalError{Code: CodeLogoutError, Message: "ac_id mismatch"}
	}
	delete(s.sessions, ip)
	return nil
}
