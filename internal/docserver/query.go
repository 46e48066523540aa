package docserver

import (
	"encoding/json/v2"
	"net/url"
	"strings"

	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/remote"
)

// ParseQuery reads where=field:value (repeatable), order_by and desc.
// Values are JSON literals ("u1", true, 25); anything that is not valid JSON
// is taken as a plain string.
func ParseQuery(v url.Values) (remote.Query, error) {
	var q remote.Query
	for _, w := range v["where"] {
		field, raw, ok := strings.Cut(w, ":")
		if !ok || field == "" {
			return remote.Query{}, domainerrors.Validationf("invalid where clause %q, want field:value", w)
		}
		q.Where = append(q.Where, remote.Filter{Field: field, Value: parseValue(raw)})
	}
	q.OrderBy = v.Get("order_by")
	q.Desc = v.Get("desc") == "true"
	return q, nil
}

// EncodeQuery is the inverse of ParseQuery.
func EncodeQuery(q remote.Query) (url.Values, error) {
	v := url.Values{}
	for _, f := range q.Where {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		v.Add("where", f.Field+":"+string(raw))
	}
	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	if q.Desc {
		v.Set("desc", "true")
	}
	return v, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
