package remote

import (
	"errors"

	"github.com/tidwall/gjson"
)

// Record is one loosely-shaped JSON object returned by the list or detail
// endpoints. Fields are read with gjson paths, e.g. "entity.refName".
type Record struct {
	raw []byte
}

func NewRecord(raw []byte) Record {
	b := make([]byte, len(raw))
	copy(b, raw)
	return Record{raw: b}
}

func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// First returns the first of paths that is present and non-empty.
func (r Record) First(paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

func (r Record) ID() string {
	return r.Get("id").String()
}

func (r Record) Raw() []byte {
	return r.raw
}

func (r *Record) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return errors.New("remote: invalid record json")
	}
	r.raw = append(r.raw[:0], b...)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}
