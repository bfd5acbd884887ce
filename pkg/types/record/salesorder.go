package record

import (
	"time"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
)

type SalesOrder struct {
	Id           string    `json:"id"`
	TranID       string    `json:"tranId"`
	CustomerName string    `json:"customerName"`
	Status       string    `json:"status"`
	Total        float64   `json:"total"`
	TranDate     time.Time `json:"tranDate"`
	From         Source    `json:"source"`
}

func (s SalesOrder) ID() string { return s.Id }

func (s SalesOrder) Source() Source { return s.From }

func (s SalesOrder) SearchFields() []string {
	return []string{s.TranID, s.CustomerName, s.Status}
}

var SalesOrderType = Type[SalesOrder]{
	Name:        "salesOrder",
	Label:       "Sales Order",
	FromSummary: salesOrderFromSummary,
	FromDetail:  salesOrderFromDetail,
	Fallback: fallback.Query{
		Table: "transaction",
		Columns: []string{
			"id",
			"tranid",
			"BUILTIN.DF(entity) AS customername",
			"BUILTIN.DF(status) AS status",
			"foreigntotal",
			"trandate",
		},
		Filters: map[string]string{"type": "SalesOrd"},
	},
	FromFallback: salesOrderFromFallback,
}

func salesOrderFromSummary(r remote.Record) (SalesOrder, error) {
	id, err := requireID("sales order summary", r)
	if err != nil {
		return SalesOrder{}, err
	}
	return SalesOrder{
		Id:           id,
		TranID:       stringOr(r.Get("tranId"), placeholder("Sales Order", id)),
		CustomerName: stringOr(r.Get("entity.refName"), ""),
		From:         SourceSummary,
	}, nil
}

func salesOrderFromDetail(r remote.Record) (SalesOrder, error) {
	id, err := requireID("sales order detail", r)
	if err != nil {
		return SalesOrder{}, err
	}
	return SalesOrder{
		Id:           id,
		TranID:       stringOr(r.Get("tranId"), placeholder("Sales Order", id)),
		CustomerName: stringOr(r.Get("entity.refName"), ""),
		Status:       stringOr(r.First("status.refName", "orderStatus.refName"), ""),
		Total:        r.Get("total").Float(),
		TranDate:     parseDate(r.Get("tranDate")),
		From:         SourceDetail,
	}, nil
}

func salesOrderFromFallback(id string, row fallback.Row, now time.Time) SalesOrder {
	return SalesOrder{
		Id:           id,
		TranID:       row.String(placeholder("Sales Order", id), "tranid"),
		CustomerName: row.String("", "customername", "expr1"),
		Status:       row.String("", "status", "expr2"),
		Total:        row.Float("foreigntotal", "total"),
		TranDate:     row.Time(now, "trandate"),
		From:         SourceFallback,
	}
}
