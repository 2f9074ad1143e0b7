// Package models defines the data shared between the orchestrator, the
// history store and the output layer.
package models

import "time"

// Credentials identify the account for one attempt. The password is never
// logged, recorded or printed.
type Credentials struct {
	// Username is the portal account, including any carrier suffix (e.g. "@cmcc").
	Username string
	// Password is hashed and encoded as raw bytes.
	Password string
}

// String hides the password.
func (c Credentials) String() string {
	return c.Username + ":***"
}

// Session is what the portal tells us about this client before login or logout.
type Session struct {
	// OnlineIP is the address the portal sees for this client.
	OnlineIP string
	// AcID identifies the access controller; discovered from a redirect.
	AcID string
}

// Action names the kind of attempt.
type Action string

const (
	// ActionQuery is a status lookup.
	ActionQuery Action = "query"
	// ActionLogin is a full challenge-response login.
	ActionLogin Action = "login"
	// ActionLogout ends the portal session.
	ActionLogout Action = "logout"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	// OutcomeOK means the portal answered error == "ok".
	OutcomeOK Outcome = "ok"
	// OutcomeRejected means the portal answered but refused.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means a step failed before the portal could decide.
	OutcomeFailed Outcome = "failed"
)

// Attempt is the record kept for each attempt. It holds no credentials.
type Attempt struct {
	// ID is a UUID assigned when the attempt starts.
	ID string `json:"id"`
	// Action is query, login or logout.
	Action Action `json:"action"`
	// Outcome is ok, rejected or failed.
	Outcome Outcome `json:"outcome"`
	// Step is the last step reached.
	Step string `json:"step"`
	// OnlineIP as reported by the portal, if reached.
	OnlineIP string `json:"online_ip,omitempty"`
	// AcID as resolved, if reached.
	AcID string `json:"ac_id,omitempty"`
	// PortalError is the portal's error field, if it answered.
	PortalError string `json:"portal_error,omitempty"`
	// Error is the local failure, if any.
	Error string `json:"error,omitempty"`
	// StartedAt and FinishedAt bracket the attempt.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
