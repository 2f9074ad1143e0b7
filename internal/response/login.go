package response

// LoginResult is the srun_portal answer to action=login.
type LoginResult struct {
	Error    string      `json:"error"`
	ClientIP Opt[string] `json:"client_ip"`
	Ecode    Opt[string] `json:"ecode"`
	ErrorMsg Opt[string] `json:"error_msg"`
	OnlineIP Opt[string] `json:"online_ip"`
	Res      Opt[string] `json:"res"`
	SrunVer  Opt[string] `json:"srun_ver"`
	St       Opt[uint64] `json:"st"`

	ServerFlag             Opt[uint64]  `json:"ServerFlag"`
	ServicesIntfServerIP   Opt[string]  `json:"services_intf_server_ip"`
	ServicesIntfServerPort Opt[string]  `json:"services_intf_server_port"`
	AccessToken            Opt[string]  `json:"access_token"`
	CheckoutDate           Opt[uint64]  `json:"checkout_date"`
	PloyMsg                Opt[string]  `json:"ploy_msg"`
	RealName               Opt[string]  `json:"real_name"`
	RemainFlux             Opt[uint64]  `json:"remain_flux"`
	RemainTimes            Opt[uint64]  `json:"remain_times"`
	SucMsg                 Opt[string]  `json:"suc_msg"`
	Sysver                 Opt[string]  `json:"sysver"`
	Username               Opt[string]  `json:"username"`
	WalletBalance          Opt[float64] `json:"wallet_balance"`
}

// OK reports whether the login was accepted.
func (r *LoginResult) OK() bool { return r.Error == ErrorOK }

// DecodeLogin decodes unwrapped login JSON.
func DecodeLogin(text string) (*LoginResult, error) {
	d, err := newDecoder(text)
	if err != nil {
		return nil, err
	}
	r := &LoginResult{
		Error:    d.requireString("error"),
		ClientIP: d.str("client_ip"),
		Ecode:    d.str("ecode"),
		ErrorMsg: d.str("error_msg"),
		OnlineIP: d.str("online_ip"),
		Res:      d.str("res"),
		SrunVer:  d.str("srun_ver"),
		St:       d.unsigned("st"),

		ServerFlag:             d.unsigned("ServerFlag"),
		ServicesIntfServerIP:   d.str("services_intf_server_ip"),
		ServicesIntfServerPort: d.str("services_intf_server_port"),
		AccessToken:            d.str("access_token"),
		CheckoutDate:           d.unsigned("checkout_date"),
		PloyMsg:                d.str("ploy_msg"),
		RealName:               d.str("real_name"),
		RemainFlux:             d.unsigned("remain_flux"),
		RemainTimes:            d.unsigned("remain_times"),
		SucMsg:                 d.str("suc_msg"),
		Sysver:                 d.str("sysver"),
		Username:               d.str("username"),
		WalletBalance:          d.number("wallet_balance"),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseLogin unwraps a JSONP body and decodes it.
func ParseLogin(body string) (*LoginResult, error) {
	text, err := Unwrap(body)
	if err != nil {
		return nil, err
	}
	return DecodeLogin(text)
}
