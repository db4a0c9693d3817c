package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringList maps a Go string slice onto a postgres text[] column. The gorm
// postgres driver has no model-level helper for arrays, so the literal form
// is produced and parsed here.
type StringList []string

var arrayEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Value encodes the slice as a postgres array literal
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "{}", nil
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, s := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(arrayEscaper.Replace(s))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// Scan decodes a postgres array literal into the slice
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}

	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}

	parsed, err := parseTextArray(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func parseTextArray(raw string) (StringList, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return nil, fmt.Errorf("malformed text array literal: %q", raw)
	}

	inner := raw[1 : len(raw)-1]
	if inner == "" {
		return StringList{}, nil
	}

	var (
		out       StringList
		cur       strings.Builder
		inQuotes  bool
		wasQuoted bool
		escaped   bool
	)

	flush := func() {
		val := cur.String()
		quoted := wasQuoted
		cur.Reset()
		wasQuoted = false
		// Unquoted NULL denotes a null element; drop it
		if !quoted && val == "NULL" {
			return
		}
		out = append(out, val)
	}

	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\' && inQuotes:
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
			if inQuotes {
				wasQuoted = true
			}
		case c == ',' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return out, nil
}
