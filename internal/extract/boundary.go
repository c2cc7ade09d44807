package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// fieldsSchema constrains the shape of the engine's fields document after
// sanitization. Nothing here is required: a field the engine could not read
// is simply absent, and the confidence router decides what absence means.
const fieldsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"member_id":      {"type": "string", "minLength": 1},
		"total_amount":   {"type": "number"},
		"service_date":   {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"receipt_number": {"type": "string", "minLength": 1},
		"policy_number":  {"type": "string"},
		"provider_name":  {"type": "string"},
		"sst_amount":     {"type": "number"},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"description": {"type": "string"},
					"amount":      {"type": "number"}
				}
			}
		}
	}
}`

var compiledFieldsSchema = jsonschema.MustCompileString("claim-fields.json", fieldsSchema)

var (
	reDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDecimal = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

var knownFields = []string{
	"member_id", "total_amount", "service_date", "receipt_number",
	"policy_number", "provider_name", "sst_amount", "items",
}

// ToClaim is the strict typed boundary. The engine's fields document is
// sanitized (malformed or unreadable values become missing, never untyped),
// validated against the schema, and mapped into an ExtractedClaim. Only a
// structurally unusable document is an extraction error; missing claim data
// is the router's problem, not ours.
func ToClaim(raw RawExtraction) (domain.ExtractedClaim, []string, error) {
	doc, dropped, err := sanitizeFields(raw.Fields)
	if err != nil {
		return domain.ExtractedClaim{}, nil, &ExtractionError{Cause: err}
	}
	if err := compiledFieldsSchema.Validate(doc); err != nil {
		return domain.ExtractedClaim{}, nil, &ExtractionError{Cause: fmt.Errorf("fields document invalid: %w", err)}
	}

	claim := domain.ExtractedClaim{
		MemberID:      stringField(doc, "member_id"),
		TotalAmount:   numberField(doc, "total_amount"),
		ServiceDate:   stringField(doc, "service_date"),
		ReceiptNumber: stringField(doc, "receipt_number"),
		PolicyNumber:  stringField(doc, "policy_number"),
		ProviderName:  stringField(doc, "provider_name"),
		SSTAmount:     numberField(doc, "sst_amount"),
		Confidence:    clamp01(raw.Confidence),
	}
	if len(raw.FieldConfidence) > 0 {
		claim.FieldConfidence = raw.FieldConfidence
	}
	if items, ok := doc["items"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			item := domain.ClaimItem{}
			if d, ok := m["description"].(string); ok {
				item.Description = d
			}
			if a, ok := m["amount"].(float64); ok {
				item.Amount = a
			}
			claim.Items = append(claim.Items, item)
		}
	}
	return claim, dropped, nil
}

// sanitizeFields normalizes the engine's document: strings are trimmed,
// amounts given as numeric strings are coerced to numbers, and anything
// malformed or unknown is dropped and reported rather than kept untyped.
func sanitizeFields(raw json.RawMessage) (map[string]any, []string, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("decode fields document: %w", err)
	}

	var dropped []string
	out := make(map[string]any, len(m))

	for _, k := range knownFields {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch k {
		case "total_amount", "sst_amount":
			if n, ok := coerceNumber(v); ok {
				out[k] = n
			} else {
				dropped = append(dropped, k)
			}
		case "service_date":
			s, ok := v.(string)
			if !ok {
				dropped = append(dropped, k)
				continue
			}
			s = strings.TrimSpace(s)
			if reDate.MatchString(s) {
				out[k] = s
			} else {
				dropped = append(dropped, k)
			}
		case "items":
			items, ok := sanitizeItems(v)
			if !ok {
				dropped = append(dropped, k)
				continue
			}
			if len(items) > 0 {
				out[k] = items
			}
		default:
			s, ok := v.(string)
			if !ok {
				dropped = append(dropped, k)
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") {
				dropped = append(dropped, k)
				continue
			}
			out[k] = s
		}
	}

	for k := range m {
		if !isKnownField(k) {
			dropped = append(dropped, k)
		}
	}
	return out, dropped, nil
}

func sanitizeItems(v any) ([]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	var items []any
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		item := map[string]any{}
		if d, ok := m["description"].(string); ok {
			item["description"] = strings.TrimSpace(d)
		}
		if n, ok := coerceNumber(m["amount"]); ok {
			item["amount"] = n
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	}
	return items, true
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if !reDecimal.MatchString(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func isKnownField(k string) bool {
	for _, f := range knownFields {
		if f == k {
			return true
		}
	}
	return false
}

func stringField(doc map[string]any, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func numberField(doc map[string]any, key string) float64 {
	if n, ok := doc[key].(float64); ok {
		return n
	}
	return 0
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
