package transport

import (
	"testing"

	"github.com/leosozza/evowhats/internal/domain"
)

func TestPayloadRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		rejected bool
		msg      string
		code     string
	}{
		{"plain ok", `{"instances":[]}`, false, "", ""},
		{"success true", `{"success":true,"data":{}}`, false, "", ""},
		{"error string", `{"error":"instance missing"}`, true, "instance missing", ""},
		{"error object", `{"error":{"message":"bad line"}}`, true, "bad line", ""},
		{"success false", `{"success":false,"error":"invalid_grant","code":"EXPIRED"}`, true, "invalid_grant", "EXPIRED"},
		{"success false bare", `{"success":false}`, true, "request rejected", ""},
		{"empty error", `{"error":""}`, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Result{Body: []byte(tt.body), StatusCode: 200}.Payload("op")
			if !tt.rejected {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			de, ok := err.(*domain.Error)
			if !ok || de.Kind != domain.KindRemoteRejected {
				t.Fatalf("expected remote_rejected, got %v", err)
			}
			if de.Message != tt.msg || de.Code != tt.code {
				t.Fatalf("got message=%q code=%q", de.Message, de.Code)
			}
		})
	}
}

func TestPayloadTransportFailurePassesThrough(t *testing.T) {
	in := &domain.Error{Kind: domain.KindTransportFailure, Message: "http 502"}
	_, err := Result{Err: in}.Payload("gateway.diag")
	if !domain.IsKind(err, domain.KindTransportFailure) {
		t.Fatalf("unexpected %v", err)
	}
	if err.(*domain.Error).Op != "gateway.diag" {
		t.Fatal("op not set")
	}
}

func TestDecodeIntoWeakTypes(t *testing.T) {
	var out struct {
		Name    string `json:"name"`
		Expires int64  `json:"expires_in"`
		Active  bool   `json:"active"`
		Flag    bool   `json:"flag"`
	}
	err := DecodeInto(map[string]interface{}{"name": "x", "expires_in": "3600", "active": 1, "flag": "Y"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Expires != 3600 || !out.Active || !out.Flag || out.Name != "x" {
		t.Fatalf("decoded %+v", out)
	}
}
