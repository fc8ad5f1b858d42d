package bitrix

// Line is a CRM open line.
type Line struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type ConnectorStatus struct {
	LineID     string `json:"line"`
	Registered bool   `json:"registered"`
	Active     bool   `json:"active"`
	Connection bool   `json:"connection"`
	Error      bool   `json:"error"`
}

// Registration describes the connector as shown in the contact center.
type Registration struct {
	Name             string
	Icon             string
	PlacementHandler string
	ChatGroup        bool
}

type SetupResult struct {
	LineID     string `json:"line_id"`
	Registered bool   `json:"registered"`
	Published  bool   `json:"published"`
	Activated  bool   `json:"activated"`
	FailedStep string `json:"failed_step,omitempty"`
}

// Token is an OAuth token pair. RefreshToken may be empty when the server
// keeps the previous one valid.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Domain       string `json:"domain"`
	MemberID     string `json:"member_id"`
}
