package acquire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup rewrites every string value in records that contains markup
// into its plain-text content. Numbers keep their literal form; object keys
// are re-emitted in sorted order.
func StripMarkup(records RecordSet) (RecordSet, error) {
	dec := json.NewDecoder(bytes.NewReader(records))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &OutputError{Err: err, Size: len(records)}
	}

	out, err := json.Marshal(stripValue(v))
	if err != nil {
		return nil, fmt.Errorf("acquire: re-encode records: %w", err)
	}
	return RecordSet(out), nil
}

func stripValue(v any) any {
	switch t := v.(type) {
	case string:
		return plainText(t)
	case []any:
		for i := range t {
			t[i] = stripValue(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = stripValue(val)
		}
		return t
	default:
		return v
	}
}

func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
