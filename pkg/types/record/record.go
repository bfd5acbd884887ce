// Package record defines the entity types the sync engine manages and how
// each is built from summary rows, detail records and fallback query rows.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
	"github.com/fieldpay/recordsync/pkg/syncerr"
)

// Source says which path produced an entity.
type Source int

const (
	SourceSummary Source = iota
	SourceDetail
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceDetail:
		return "detail"
	case SourceFallback:
		return "fallback"
	default:
		return "summary"
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Entity interface {
	ID() string
	// SearchFields are the text fields matched by search.
	SearchFields() []string
	Source() Source
}

// Type binds an entity type to its remote record name and mappers.
type Type[E Entity] struct {
	// Name is the remote record type, e.g. "customer".
	Name string
	// Label is the human name used in placeholders, e.g. "Customer".
	Label        string
	FromSummary  func(remote.Record) (E, error)
	FromDetail   func(remote.Record) (E, error)
	Fallback     fallback.Query
	FromFallback fallback.MapFunc[E]
}

// Names lists the record types known to this package.
var Names = []string{CustomerType.Name, InvoiceType.Name, SalesOrderType.Name}

func placeholder(label, id string) string {
	return fmt.Sprintf("%s %s", label, id)
}

func requireID(op string, r remote.Record) (string, error) {
	id := strings.TrimSpace(r.ID())
	if id == "" {
		return "", syncerr.Newf(syncerr.KindNotFound, op, "record has no id")
	}
	return id, nil
}

func stringOr(v gjson.Result, def string) string {
	if s := strings.TrimSpace(v.String()); s != "" {
		return s
	}
	return def
}

var detailDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate returns the zero time when v is absent or not a date.
func parseDate(v gjson.Result) time.Time {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return time.Time{}
	}
	for _, layout := range detailDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
