package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":      {},
	"emails":     {},
	"recipients": {},
	"to":         {},
	"password":   {},
	"token":      {},
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input with values under sensitive keys masked.
// Nested maps and lists are walked.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(trimmedKey)]; ok {
			masked[trimmedKey] = maskValue(value)
			continue
		}
		masked[trimmedKey] = walk(value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func walk(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskSensitive(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, walk(item))
		}
		return out
	default:
		return value
	}
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		if strings.Contains(cast, "@") {
			return MaskEmail(cast)
		}
		return MaskSecret(cast)
	case []string:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(cast))
		for k, v := range cast {
			out[k] = maskValue(v)
		}
		return out
	default:
		return value
	}
}
