package models

import (
	"testing"
)

func TestDetectRequest_Validate(t *testing.T) {
	neg := -0.5
	tests := []struct {
		name    string
		req     *DetectRequest
		wantErr bool
	}{
		{"empty text", &DetectRequest{Text: ""}, true},
		{"valid", &DetectRequest{Text: "User admin logged in"}, false},
		{"negative k", &DetectRequest{Text: "x", K: -1}, true},
		{"negative threshold", &DetectRequest{Text: "x", Threshold: &neg}, true},
		{"caps k", &DetectRequest{Text: "x", K: 5000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.req.K < 1 || tt.req.K > 1000 {
				t.Errorf("expected k within [1, 1000], got %d", tt.req.K)
			}
			if tt.req.ScoreMethod != MethodKth {
				t.Errorf("expected default method kth, got %q", tt.req.ScoreMethod)
			}
		})
	}
}

func TestDetectRequest_DefaultK(t *testing.T) {
	req := &DetectRequest{Text: "x"}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	if req.K != 5 {
		t.Errorf("K = %d, want 5", req.K)
	}
}

func TestBaselineEntry_Field(t *testing.T) {
	e := &BaselineEntry{ID: "a", Category: "auth", Source: "ssh.log"}
	if e.Field("category") != "auth" {
		t.Errorf("category = %q", e.Field("category"))
	}
	if e.Field("source") != "ssh.log" {
		t.Errorf("source = %q", e.Field("source"))
	}
	if e.Field("unknown") != "" {
		t.Errorf("unknown field should be empty")
	}
}
