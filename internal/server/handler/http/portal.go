// Package http serves the SRUN portal endpoints of the fake portal.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/atinyakov/srun-login/internal/middleware"
	"github.com/atinyakov/srun-login/internal/service"
)

// SrunVersion is reported in every answer.
const SrunVersion = "SRunCGIAuthIntfSvr V1.18 B20211105"

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// PortalService defines the portal operations required by the PortalHandler.
type PortalService interface {
	// AcID returns the access controller id clients are redirected to.
	AcID() string
	// ChallengeTTL is reported as the challenge "expire" field.
	ChallengeTTL() time.Duration
	// Status returns the session of the client at ip, if any.
	Status(ip string) (service.Session, bool)
	// IssueChallenge returns a fresh challenge for username at ip.
	IssueChallenge(username, ip string) (string, error)
	// Login verifies a challenge-response login.
	Login(req service.LoginRequest) (service.Session, error)
	// Logout ends the session of username at ip.
	Logout(username, ip, acID string) error
}

// PortalHandler handles the portal's HTTP endpoints.
type PortalHandler struct {
	PortalService PortalService
}

// writeJSONP writes v wrapped in the request's callback, as the portal does.
func writeJSONP(w http.ResponseWriter, r *http.Request, v map[string]any) {
	cb := r.URL.Query().Get("callback")
	if !callbackPattern.MatchString(cb) {
		cb = "jsonp"
	}
	v["srun_ver"] = SrunVersion
	v["st"] = time.Now().Unix()

	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%s(%s)", cb, body)
}

func refusal(err error) map[string]any {
	var pe *service.PortalError
	if !errors.As(err, &pe) {
		pe = &service.PortalError{Code: service.CodeLoginError, Message: err.Error()}
	}
	body := map[string]any{
		"error":     pe.Code,
		"res":       pe.Code,
		"error_msg": pe.Message,
	}
	if pe.Ecode != "" {
		body["ecode"] = pe.Ecode
	} else {
		body["ecode"] = 0
	}
	return body
}

// Generate204 answers the connectivity probe: 204 when the caller is online,
// otherwise a redirect to the portal page.
func (h *PortalHandler) Generate204(w http.ResponseWriter, r *http.Request) {
	ip := middleware.GetClientIPFromContext(r.Context())
	if _, online := h.PortalService.Status(ip); online {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/index_1.html", http.StatusFound)
}

// Index handles GET /index_1.html by redirecting to the portal page, whose
// URL carries the ac_id.
func (h *PortalHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/srun_portal_pc?ac_id="+h.PortalService.AcID()+"&theme=pro", http.StatusFound)
}

// PortalPage handles GET /srun_portal_pc.
func (h *PortalHandler) PortalPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!DOCTYPE html><title>SRUN portal</title>"))
}

// UserInfo handles GET /cgi-bin/rad_user_info.
func (h *PortalHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	ip := middleware.GetClientIPFromContext(r.Context())
	sess, online := h.PortalService.Status(ip)
	if !online {
		writeJSONP(w, r, map[string]any{
			"error":     service.CodeNotOnline,
			"res":       service.CodeNotOnline,
			"error_msg": "",
			"ecode":     0,
			"client_ip": ip,
			"online_ip": ip,
		})
		return
	}
	writeJSONP(w, r, map[string]any{
		"error":               service.CodeOK,
		"res":                 service.CodeOK,
		"client_ip":           ip,
		"online_ip":           ip,
		"user_name":           sess.Username,
		"add_time":            sess.Since.Unix(),
		"keepalive_time":      time.Now().Unix(),
		"sum_bytes":           sess.Bytes,
		"sum_seconds":         int64(time.Since(sess.Since).Seconds()),
		"user_balance":        0,
		"wallet_balance":      0,
		"online_device_total": "1",
		"ServerFlag":          0,
	})
}

// Challenge handles GET /cgi-bin/get_challenge.
func (h *PortalHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientIP := middleware.GetClientIPFromContext(r.Context())
	ip := q.Get("ip")
	if ip == "" {
		ip = clientIP
	}

	token, err := h.PortalService.IssueChallenge(q.Get("username"), ip)
	if err != nil {
		body := refusal(err)
		body["client_ip"] = clientIP
		writeJSONP(w, r, body)
		return
	}
	writeJSONP(w, r, map[string]any{
		"error":     service.CodeOK,
		"res":       service.CodeOK,
		"challenge": token,
		"client_ip": clientIP,
		"online_ip": ip,
		"ecode":     0,
		"error_msg": "",
		"expire":    fmt.Sprint(int(h.PortalService.ChallengeTTL().Seconds())),
	})
}

// Portal handles GET /cgi-bin/srun_portal for action=login and action=logout.
func (h *PortalHandler) Portal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientIP := middleware.GetClientIPFromContext(r.Context())

	switch q.Get("action") {
	case "login":
		sess, err := h.PortalService.Login(service.LoginRequest{
			Username: q.Get("username"),
			Password: q.Get("password"),
			Chksum:   q.Get("chksum"),
			Info:     q.Get("info"),
			AcID:     q.Get("ac_id"),
			IP:       q.Get("ip"),
			N:        q.Get("n"),
			Type:     q.Get("type"),
		})
		if err != nil {
			body := refusal(err)
			body["client_ip"] = clientIP
			body["online_ip"] = q.Get("ip")
			writeJSONP(w, r, body)
			return
		}
		writeJSONP(w, r, map[string]any{
			"error":          service.CodeOK,
			"res":            service.CodeOK,
			"ecode":          0,
			"error_msg":      "",
			"suc_msg":        "login_ok",
			"ploy_msg":       "",
			"client_ip":      clientIP,
			"online_ip":      sess.IP,
			"username":       sess.Username,
			"real_name":      "",
			"access_token":   "",
			"checkout_date":  0,
			"remain_flux":    0,
			"remain_times":   0,
			"wallet_balance": 0,
			"ServerFlag":     0,
			"sysver":         "1.01.20211105",
		})
	case "logout":
		if err := h.PortalService.Logout(q.Get("username"), q.Get("ip"), q.Get("ac_id")); err != nil {
			body := refusal(err)
			body["client_ip"] = clientIP
			writeJSONP(w, r, body)
			return
		}
		writeJSONP(w, r, map[string]any{
			"error":     service.CodeOK,
			"res":       service.CodeOK,
			"ecode":     0,
			"error_msg": "",
			"client_ip": clientIP,
			"online_ip": q.Get("ip"),
		})
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}
