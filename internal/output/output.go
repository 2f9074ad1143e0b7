// Package output renders portal answers and attempt history for the terminal,
// as short plain text or as indented JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/srun-login/internal/models"
	"github.com/atinyakov/srun-login/internal/response"
)

// Formats.
const (
	Plain = "plain"
	JSON  = "json"
)

// Printer writes results to w in one format.
type Printer struct {
	w      io.Writer
	format string
}

// New returns a Printer. Any format other than JSON prints plain text.
func New(w io.Writer, format string) *Printer {
	return &Printer{w: w, format: format}
}

func (p *Printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Status prints a rad_user_info answer.
func (p *Printer) Status(s *response.Status) error {
	if p.format == JSON {
		return p.json(s)
	}
	state := "offline"
	if s.OK() {
		state = "online"
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", state)
	fmt.Fprintf(tw, "IP:\t%s\n", s.OnlineIP)
	if v, ok := s.UserName.Get(); ok {
		fmt.Fprintf(tw, "User:\t%s\n", v)
	}
	if v, ok := s.SumBytes.Get(); ok {
		fmt.Fprintf(tw, "Used:\t%s\n", Bytes(v))
	}
	if v, ok := s.SumSeconds.Get(); ok {
		fmt.Fprintf(tw, "Online time:\t%s\n", time.Duration(v)*time.Second)
	}
	if v, ok := s.UserBalance.Get(); ok {
		fmt.Fprintf(tw, "Balance:\t%s\n", strconv.FormatFloat(v, 'f', 2, 64))
	}
	if v, ok := s.OnlineDeviceTotal.Get(); ok {
		fmt.Fprintf(tw, "Devices online:\t%s\n", v)
	}
	return tw.Flush()
}

// Login prints a login answer.
func (p *Printer) Login(r *response.LoginResult) error {
	if p.format == JSON {
		return p.json(r)
	}
	if r.OK() {
		if _, err := fmt.Fprintln(p.w, "Login OK"); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(p.w, "Login failed: %s\n", reason(r.Error, r.ErrorMsg)); err != nil {
		return err
	}
	if ip, ok := r.OnlineIP.Get(); ok {
		_, err := fmt.Fprintf(p.w, "IP: %s\n", ip)
		return err
	}
	return nil
}

// Logout prints a logout answer.
func (p *Printer) Logout(r *response.LogoutResult) error {
	if p.format == JSON {
		return p.json(r)
	}
	if r.OK() {
		_, err := fmt.Fprintln(p.w, "Logout OK")
		return err
	}
	_, err := fmt.Fprintf(p.w, "Logout failed: %s\n", reason(r.Error, r.ErrorMsg))
	return err
}

// Probe prints the result of the redirect probe. Only plain output mentions it.
func (p *Printer) Probe(open bool) error {
	if p.format == JSON || !open {
		return nil
	}
	_, err := fmt.Fprintln(p.w, "Redirect probe answered 204; the network is already open.")
	return err
}

// History prints attempts, newest first as given.
func (p *Printer) History(attempts []models.Attempt) error {
	if p.format == JSON {
		if attempts == nil {
			attempts = []models.Attempt{}
		}
		return p.json(attempts)
	}
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(p.w, "No attempts recorded.")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACTION\tOUTCOME\tSTEP\tIP\tAC_ID\tDETAIL")
	for _, a := range attempts {
		detail := a.PortalError
		if a.Error != "" {
			detail = a.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.StartedAt.Local().Format(time.DateTime),
			a.Action, a.Outcome, a.Step,
			dash(a.OnlineIP), dash(a.AcID), dash(detail),
		)
	}
	return tw.Flush()
}

func reason(code string, msg response.Opt[string]) string {
	if m, ok := msg.Get(); ok && m != "" {
		return m
	}
	return code
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Bytes formats a byte count with binary units.
func Bytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
