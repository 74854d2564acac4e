package fhir

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestErrorOutcome(t *testing.T) {
	oo := ErrorOutcome("unknown participant code")

	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("resourceType = %q, want OperationOutcome", oo.ResourceType)
	}
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	issue := oo.Issue[0]
	if issue.Severity != "error" || issue.Code != "processing" {
		t.Errorf("issue = %s/%s, want error/processing", issue.Severity, issue.Code)
	}
	if issue.Diagnostics != "unknown participant code" {
		t.Errorf("diagnostics = %q", issue.Diagnostics)
	}
}

func TestNewOperationOutcome_Warning(t *testing.T) {
	oo := NewOperationOutcome("warning", "informational", "claim queued for review")
	if oo.Issue[0].Severity != "warning" {
		t.Errorf("severity = %q, want warning", oo.Issue[0].Severity)
	}
}

func TestResource_OmitsEmptyMeta(t *testing.T) {
	data, err := json.Marshal(Resource{ResourceType: "Claim", ID: "c1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "meta") {
		t.Errorf("empty meta should be omitted, got %s", data)
	}
}

func TestMoney_MarshalsValueAlways(t *testing.T) {
	// A zero claim total must still serialize the value field so payers
	// do not reject the resource as incomplete.
	data, err := json.Marshal(Money{Currency: "INR"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"value":0`) {
		t.Errorf("expected explicit zero value, got %s", data)
	}
}
