package tttdto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParseField decodes the move target. It returns nil when the field is absent, null or an empty
// string. Anything else that is not an integer becomes -1 so it is refused as out of range.
func (m MakeMove) ParseField() *int {
	raw := bytes.TrimSpace(m.Field)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if v, err := strconv.Atoi(s); err == nil {
			return &v
		}
	}
	bad := -1
	return &bad
}
