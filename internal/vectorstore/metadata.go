package vectorstore

import (
	"fmt"
	"strconv"
)

// convertMetadataToString flattens metadata for backends that only store
// string values (chromem). Non-scalar values are stringified with %v.
func convertMetadataToString(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case float32:
			out[k] = strconv.FormatFloat(float64(val), 'f', -1, 32)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// convertMetadataFromString re-types string metadata on the way out:
// bools and numbers are parsed back, everything else stays a string.
// Best effort only; a field stored as the string "true" comes back as a
// bool.
func convertMetadataFromString(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if b, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
			out[k] = b
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}
