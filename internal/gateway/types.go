package gateway

// Instance is one gateway session as listed by the gateway.
type Instance struct {
	Name             string `json:"instanceName"`
	ID               string `json:"instanceId"`
	Owner            string `json:"owner"`
	ProfileName      string `json:"profileName"`
	ConnectionStatus string `json:"connectionStatus"`
	Status           string `json:"status"`
}

func (i *Instance) normalize() {
	if i.ConnectionStatus == "" {
		i.ConnectionStatus = i.Status
	}
}

// Session is the gateway reply to ensure/start.
type Session struct {
	LineID     string `json:"lineId"`
	InstanceID string `json:"instanceId"`
	State      string `json:"-"`
}

// Status is a connection-state read for a line.
type Status struct {
	LineID     string `json:"lineId"`
	InstanceID string `json:"instanceId"`
	State      string `json:"-"`
}

// QR carries a pairing payload. Code may be a data URI, bare base64 or the raw
// code string the gateway received from WhatsApp.
type QR struct {
	LineID      string `json:"lineId"`
	Code        string `json:"base64"`
	PairingCode string `json:"pairingCode"`
	State       string `json:"-"`
}

type SendResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}
