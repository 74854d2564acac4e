package fhir

// Helpers for walking decoded FHIR JSON. Payer payloads arrive as untyped
// maps; these keep the navigation code readable without reflection.

// Map asserts v to a JSON object, returning nil when it is anything else.
func Map(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// Slice returns the JSON array at key, or nil when absent or not an array.
func Slice(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	s, _ := m[key].([]interface{})
	return s
}

// Str returns the string at key, or "" when absent or not a string.
func Str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Num returns the number at key. JSON numbers decode as float64.
func Num(m map[string]interface{}, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch n := m[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// FindEntry returns the first resource of the given type from a Bundle's
// entry array, or nil when the bundle has none.
func FindEntry(bundle map[string]interface{}, resourceType string) map[string]interface{} {
	for _, e := range Slice(bundle, "entry") {
		entry := Map(e)
		resource := Map(entry["resource"])
		if Str(resource, "resourceType") == resourceType {
			return resource
		}
	}
	return nil
}

// ResourceOf returns body itself when it is a resource of the given type,
// or searches body's payload/entry bundle for one. Payers wrap ClaimResponse
// resources inconsistently; this accepts the common shapes.
func ResourceOf(body map[string]interface{}, resourceType string) map[string]interface{} {
	if Str(body, "resourceType") == resourceType {
		return body
	}
	if payload := Map(body["payload"]); payload != nil {
		if Str(payload, "resourceType") == resourceType {
			return payload
		}
		if r := FindEntry(payload, resourceType); r != nil {
			return r
		}
	}
	return FindEntry(body, resourceType)
}
