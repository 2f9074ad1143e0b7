package response

// LogoutResult is the srun_portal answer to action=logout.
type LogoutResult struct {
	Error    string      `json:"error"`
	ClientIP Opt[string] `json:"client_ip"`
	Ecode    Opt[string] `json:"ecode"`
	ErrorMsg Opt[string] `json:"error_msg"`
	OnlineIP Opt[string] `json:"online_ip"`
	Res      Opt[string] `json:"res"`
	SrunVer  Opt[string] `json:"srun_ver"`
}

// OK reports whether the logout was accepted.
func (r *LogoutResult) OK() bool { return r.Error == ErrorOK }

// DecodeLogout decodes unwrapped logout JSON.
func DecodeLogout(text string) (*LogoutResult, error) {
	d, err := newDecoder(text)
	if err != nil {
		return nil, err
	}
	r := &LogoutResult{
		Error:    d.requireString("error"),
		ClientIP: d.str("client_ip"),
		Ecode:    d.str("ecode"),
		ErrorMsg: d.str("error_msg"),
		OnlineIP: d.str("online_ip"),
		Res:      d.str("res"),
		SrunVer:  d.str("srun_ver"),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseLogout unwraps a JSONP body and decodes it.
func ParseLogout(body string) (*LogoutResult, error) {
	text, err := Unwrap(body)
	if err != nil {
		return nil, err
	}
	return DecodeLogout(text)
}
