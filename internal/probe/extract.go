package probe

import (
	"regexp"
	"strings"

	"github.com/buger/jsonparser"
)

// ExtractField returns the string value of field from a response body.
// A top-level lookup is tried first; if the document is malformed or the
// field is nested, the raw body is scanned for the first "field":"value"
// pair. Absent, empty and non-string values all report false.
func ExtractField(body []byte, field string) (string, bool) {
	if len(body) == 0 || field == "" {
		return "", false
	}

	if v, err := jsonparser.GetString(body, field); err == nil {
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	re, err := regexp.Compile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"([^"]*)"`)
	if err != nil {
		return "", false
	}
	m := re.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(string(m[1]))
	return v, v != ""
}
