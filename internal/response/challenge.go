package response

// Challenge is the get_challenge answer.
type Challenge struct {
	Error     string      `json:"error"`
	Challenge string      `json:"challenge"`
	ClientIP  Opt[string] `json:"client_ip"`
	Ecode     Opt[string] `json:"ecode"`
	ErrorMsg  Opt[string] `json:"error_msg"`
	Expire    Opt[uint64] `json:"expire"`
	OnlineIP  Opt[string] `json:"online_ip"`
	Res       Opt[string] `json:"res"`
	SrunVer   Opt[string] `json:"srun_ver"`
	St        Opt[uint64] `json:"st"`
}

// OK reports whether a challenge was issued.
func (c *Challenge) OK() bool { return c.Error == ErrorOK }

// DecodeChallenge decodes unwrapped get_challenge JSON. The challenge field
// is mandatory only when error is "ok".
func DecodeChallenge(text string) (*Challenge, error) {
	d, err := newDecoder(text)
	if err != nil {
		return nil, err
	}
	c := &Challenge{Error: d.requireString("error")}
	if c.Error == ErrorOK {
		c.Challenge = d.requireString("challenge")
	} else {
		c.Challenge = d.str("challenge").Or("")
	}
	c.ClientIP = d.str("client_ip")
	c.Ecode = d.str("ecode")
	c.ErrorMsg = d.str("error_msg")
	c.Expire = d.unsigned("expire")
	c.OnlineIP = d.str("online_ip")
	c.Res = d.str("res")
	c.SrunVer = d.str("srun_ver")
	c.St = d.unsigned("st")
	if err := d.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseChallenge unwraps a JSONP body and decodes it.
func ParseChallenge(body string) (*Challenge, error) {
	text, err := Unwrap(body)
	if err != nil {
		return nil, err
	}
	return DecodeChallenge(text)
}
