package response

// ErrorOK is the error field value of a successful portal response.
const ErrorOK = "ok"

// Status is the rad_user_info answer. The accounting fields are only sent
// while the client is online.
type Status struct {
	Error    string `json:"error"`
	OnlineIP string `json:"online_ip"`

	ClientIP Opt[string] `json:"client_ip"`
	Ecode    Opt[string] `json:"ecode"`
	ErrorMsg Opt[string] `json:"error_msg"`
	Res      Opt[string] `json:"res"`
	SrunVer  Opt[string] `json:"srun_ver"`
	St       Opt[uint64] `json:"st"`

	ServerFlag        Opt[uint64]  `json:"ServerFlag"`
	AddTime           Opt[uint64]  `json:"add_time"`
	AllBytes          Opt[uint64]  `json:"all_bytes"`
	BillingName       Opt[string]  `json:"billing_name"`
	BytesIn           Opt[uint64]  `json:"bytes_in"`
	BytesOut          Opt[uint64]  `json:"bytes_out"`
	CheckoutDate      Opt[uint64]  `json:"checkout_date"`
	Domain            Opt[string]  `json:"domain"`
	GroupID           Opt[string]  `json:"group_id"`
	KeepaliveTime     Opt[uint64]  `json:"keepalive_time"`
	OnlineDeviceTotal Opt[string]  `json:"online_device_total"`
	OnlineIP6         Opt[string]  `json:"online_ip6"`
	PackageID         Opt[string]  `json:"package_id"`
	ProductsID        Opt[string]  `json:"products_id"`
	ProductsName      Opt[string]  `json:"products_name"`
	RealName          Opt[string]  `json:"real_name"`
	RemainBytes       Opt[uint64]  `json:"remain_bytes"`
	RemainSeconds     Opt[uint64]  `json:"remain_seconds"`
	SumBytes          Opt[uint64]  `json:"sum_bytes"`
	SumSeconds        Opt[uint64]  `json:"sum_seconds"`
	Sysver            Opt[string]  `json:"sysver"`
	UserBalance       Opt[float64] `json:"user_balance"`
	UserCharge        Opt[float64] `json:"user_charge"`
	UserMac           Opt[string]  `json:"user_mac"`
	UserName          Opt[string]  `json:"user_name"`
	WalletBalance     Opt[float64] `json:"wallet_balance"`
}

// OK reports whether the portal considers the client online.
func (s *Status) OK() bool { return s.Error == ErrorOK }

// DecodeStatus decodes unwrapped rad_user_info JSON.
func DecodeStatus(text string) (*Status, error) {
	d, err := newDecoder(text)
	if err != nil {
		return nil, err
	}
	s := &Status{
		Error:    d.requireString("error"),
		OnlineIP: d.requireString("online_ip"),

		ClientIP: d.str("client_ip"),
		Ecode:    d.str("ecode"),
		ErrorMsg: d.str("error_msg"),
		Res:      d.str("res"),
		SrunVer:  d.str("srun_ver"),
		St:       d.unsigned("st"),

		ServerFlag:        d.unsigned("ServerFlag"),
		AddTime:           d.unsigned("add_time"),
		AllBytes:          d.unsigned("all_bytes"),
		BillingName:       d.str("billing_name"),
		BytesIn:           d.unsigned("bytes_in"),
		BytesOut:          d.unsigned("bytes_out"),
		CheckoutDate:      d.unsigned("checkout_date"),
		Domain:            d.str("domain"),
		GroupID:           d.str("group_id"),
		KeepaliveTime:     d.unsigned("keepalive_time"),
		OnlineDeviceTotal: d.str("online_device_total"),
		OnlineIP6:         d.str("online_ip6"),
		PackageID:         d.str("package_id"),
		ProductsID:        d.str("products_id"),
		ProductsName:      d.str("products_name"),
		RealName:          d.str("real_name"),
		RemainBytes:       d.unsigned("remain_bytes"),
		RemainSeconds:     d.unsigned("remain_seconds"),
		SumBytes:          d.unsigned("sum_bytes"),
		SumSeconds:        d.unsigned("sum_seconds"),
		Sysver:            d.str("sysver"),
		UserBalance:       d.number("user_balance"),
		UserCharge:        d.number("user_charge"),
		UserMac:           d.str("user_mac"),
		UserName:          d.str("user_name"),
		WalletBalance:     d.number("wallet_balance"),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseStatus unwraps a JSONP body and decodes it.
func ParseStatus(body string) (*Status, error) {
	text, err := Unwrap(body)
	if err != nil {
		return nil, err
	}
	return DecodeStatus(text)
}
