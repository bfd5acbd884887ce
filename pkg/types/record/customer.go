package record

import (
	"strings"
	"time"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
)

type Customer struct {
	Id          string    `json:"id"`
	EntityID    string    `json:"entityId"`
	CompanyName string    `json:"companyName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Balance     float64   `json:"balance"`
	DateCreated time.Time `json:"dateCreated"`
	From        Source    `json:"source"`
}

func (c Customer) ID() string { return c.Id }

func (c Customer) Source() Source { return c.From }

func (c Customer) SearchFields() []string {
	return []string{c.CompanyName, c.EntityID, c.Email}
}

var CustomerType = Type[Customer]{
	Name:        "customer",
	Label:       "Customer",
	FromSummary: customerFromSummary,
	FromDetail:  customerFromDetail,
	Fallback: fallback.Query{
		Table:   "customer",
		Columns: []string{"id", "entityid", "companyname", "firstname", "lastname", "email", "phone", "balance", "datecreated"},
	},
	FromFallback: customerFromFallback,
}

func customerFromSummary(r remote.Record) (Customer, error) {
	id, err := requireID("customer summary", r)
	if err != nil {
		return Customer{}, err
	}
	return Customer{
		Id:          id,
		EntityID:    stringOr(r.Get("entityId"), ""),
		CompanyName: stringOr(r.First("companyName", "altName"), placeholder("Customer", id)),
		From:        SourceSummary,
	}, nil
}

func customerFromDetail(r remote.Record) (Customer, error) {
	id, err := requireID("customer detail", r)
	if err != nil {
		return Customer{}, err
	}

	name := stringOr(r.First("companyName", "altName"), "")
	if name == "" {
		name = strings.TrimSpace(r.Get("firstName").String() + " " + r.Get("lastName").String())
	}
	if name == "" {
		name = placeholder("Customer", id)
	}

	return Customer{
		Id:          id,
		EntityID:    stringOr(r.Get("entityId"), ""),
		CompanyName: name,
		Email:       stringOr(r.Get("email"), ""),
		Phone:       stringOr(r.Get("phone"), ""),
		Balance:     r.First("balance", "balanceSearch").Float(),
		DateCreated: parseDate(r.Get("dateCreated")),
		From:        SourceDetail,
	}, nil
}

func customerFromFallback(id string, row fallback.Row, now time.Time) Customer {
	name := row.String("", "companyname", "altname")
	if name == "" {
		name = strings.TrimSpace(row.String("", "firstname") + " " + row.String("", "lastname"))
	}
	if name == "" {
		name = placeholder("Customer", id)
	}
	return Customer{
		Id:          id,
		EntityID:    row.String("", "entityid"),
		CompanyName: name,
		Email:       row.String("", "email"),
		Phone:       row.String("", "phone"),
		Balance:     row.Float("balance"),
		DateCreated: row.Time(now, "datecreated"),
		From:        SourceFallback,
	}
}
