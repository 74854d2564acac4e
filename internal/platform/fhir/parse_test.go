package fhir

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestFindEntry(t *testing.T) {
	bundle := decode(t, `{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1"}},
			{"resource": {"resourceType": "ClaimResponse", "outcome": "complete"}}
		]
	}`)

	cr := FindEntry(bundle, "ClaimResponse")
	if cr == nil {
		t.Fatal("expected ClaimResponse entry")
	}
	if Str(cr, "outcome") != "complete" {
		t.Errorf("expected outcome complete, got %q", Str(cr, "outcome"))
	}

	if FindEntry(bundle, "Coverage") != nil {
		t.Error("expected nil for absent resource type")
	}
}

func TestResourceOf_Direct(t *testing.T) {
	body := decode(t, `{"resourceType": "ClaimResponse", "outcome": "error"}`)
	if r := ResourceOf(body, "ClaimResponse"); r == nil || Str(r, "outcome") != "error" {
		t.Fatalf("expected direct resource, got %v", r)
	}
}

func TestResourceOf_PayloadBundle(t *testing.T) {
	body := decode(t, `{
		"payload": {
			"resourceType": "Bundle",
			"entry": [{"resource": {"resourceType": "ClaimResponse", "outcome": "partial"}}]
		}
	}`)
	r := ResourceOf(body, "ClaimResponse")
	if r == nil || Str(r, "outcome") != "partial" {
		t.Fatalf("expected resource from payload bundle, got %v", r)
	}
}

func TestResourceOf_Absent(t *testing.T) {
	body := decode(t, `{"status": "ok"}`)
	if ResourceOf(body, "ClaimResponse") != nil {
		t.Error("expected nil when resource absent")
	}
}

func TestSlice(t *testing.T) {
	m := decode(t, `{"entry": [{"a": 1}], "label": "x"}`)
	if got := Slice(m, "entry"); len(got) != 1 {
		t.Errorf("expected 1 element, got %v", got)
	}
	if Slice(m, "label") != nil {
		t.Error("expected nil for non-array value")
	}
	if Slice(m, "missing") != nil {
		t.Error("expected nil for missing key")
	}
	if Slice(nil, "entry") != nil {
		t.Error("expected nil for nil map")
	}
}

func TestNum(t *testing.T) {
	m := decode(t, `{"amount": 50000, "label": "x"}`)
	if v, ok := Num(m, "amount"); !ok || v != 50000 {
		t.Errorf("expected 50000, got %v %v", v, ok)
	}
	if _, ok := Num(m, "label"); ok {
		t.Error("expected false for non-numeric value")
	}
	if _, ok := Num(m, "missing"); ok {
		t.Error("expected false for missing key")
	}
}
