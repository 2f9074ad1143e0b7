package codec

import (
	"bytes"
	"encoding/json"
)

// EncVer is the only encoding version the portal accepts.
const EncVer = "srun_bx1"

// AuthBlob is the identity record carried, encoded, in the login "info" parameter.
// Field order is the order the portal's own client serializes.
type AuthBlob struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IP       string `json:"ip"`
	AcID     string `json:"acid"`
	EncVer   string `json:"enc_ver"`
}

// NewAuthBlob builds a blob with the current encoding version.
func NewAuthBlob(username, password, ip, acID string) AuthBlob {
	return AuthBlob{
		Username: username,
		Password: password,
		IP:       ip,
		AcID:     acID,
		EncVer:   EncVer,
	}
}

// Marshal renders the blob as compact JSON without HTML escaping.
func (b AuthBlob) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode marshals the blob and encodes it with the challenge.
func (b AuthBlob) Encode(challenge string, opts Options) (string, error) {
	plain, err := b.Marshal()
	if err != nil {
		return "", err
	}
	return EncodeAuthBlobWith(plain, challenge, opts)
}
