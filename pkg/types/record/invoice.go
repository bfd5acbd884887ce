package record

import (
	"time"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
)

type Invoice struct {
	Id              string    `json:"id"`
	TranID          string    `json:"tranId"`
	CustomerName    string    `json:"customerName"`
	Status          string    `json:"status"`
	Total           float64   `json:"total"`
	AmountRemaining float64   `json:"amountRemaining"`
	TranDate        time.Time `json:"tranDate"`
	DueDate         time.Time `json:"dueDate"`
	From            Source    `json:"source"`
}

func (i Invoice) ID() string { return i.Id }

func (i Invoice) Source() Source { return i.From }

func (i Invoice) SearchFields() []string {
	return []string{i.TranID, i.CustomerName, i.Status}
}

var InvoiceType = Type[Invoice]{
	Name:        "invoice",
	Label:       "Invoice",
	FromSummary: invoiceFromSummary,
	FromDetail:  invoiceFromDetail,
	Fallback: fallback.Query{
		Table: "transaction",
		Columns: []string{
			"id",
			"tranid",
			"BUILTIN.DF(entity) AS customername",
			"BUILTIN.DF(status) AS status",
			"foreigntotal",
			"foreignamountunpaid",
			"trandate",
			"duedate",
		},
		Filters: map[string]string{"type": "CustInvc"},
	},
	FromFallback: invoiceFromFallback,
}

func invoiceFromSummary(r remote.Record) (Invoice, error) {
	id, err := requireID("invoice summary", r)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Id:           id,
		TranID:       stringOr(r.Get("tranId"), placeholder("Invoice", id)),
		CustomerName: stringOr(r.Get("entity.refName"), ""),
		Total:        r.Get("total").Float(),
		From:         SourceSummary,
	}, nil
}

func invoiceFromDetail(r remote.Record) (Invoice, error) {
	id, err := requireID("invoice detail", r)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Id:              id,
		TranID:          stringOr(r.Get("tranId"), placeholder("Invoice", id)),
		CustomerName:    stringOr(r.Get("entity.refName"), ""),
		Status:          stringOr(r.First("status.refName", "status.id"), ""),
		Total:           r.Get("total").Float(),
		AmountRemaining: r.First("amountRemaining", "amountRemainingTotalBox").Float(),
		TranDate:        parseDate(r.Get("tranDate")),
		DueDate:         parseDate(r.Get("dueDate")),
		From:            SourceDetail,
	}, nil
}

func invoiceFromFallback(id string, row fallback.Row, now time.Time) Invoice {
	return Invoice{
		Id:              id,
		TranID:          row.String(placeholder("Invoice", id), "tranid"),
		CustomerName:    row.String("", "customername", "expr1"),
		Status:          row.String("", "status", "expr2"),
		Total:           row.Float("foreigntotal", "total"),
		AmountRemaining: row.Float("foreignamountunpaid", "amountremaining"),
		TranDate:        row.Time(now, "trandate"),
		DueDate:         row.Time(now, "duedate"),
		From:            SourceFallback,
	}
}
