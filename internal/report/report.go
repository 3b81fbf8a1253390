// Package report turns a monthly aggregate into a presentation document and
// writes it as JSON or CSV.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"financeflow/internal/analytics"
	"financeflow/internal/core"

	"github.com/shopspring/decimal"
)

// MonthlyReporter is the slice of the analytics engine the exporter needs.
type MonthlyReporter interface {
	MonthlyReport(ctx context.Context, userID int64, year, month int) (core.MonthlyReport, error)
}

// Document is the exported form of a monthly report.
type Document struct {
	Period           string                `json:"period"`
	TotalIncome      float64               `json:"total_income"`
	TotalExpenses    float64               `json:"total_expenses"`
	NetBalance       float64               `json:"net_balance"`
	TransactionCount int                   `json:"transaction_count"`
	Categories       []core.CategoryAmount `json:"categories"`
	Accounts         []core.AccountRef     `json:"accounts"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

type Exporter struct {
	source MonthlyReporter
	now    func() time.Time
}

func New(source MonthlyReporter) *Exporter {
	return &Exporter{source: source, now: time.Now}
}

// WithClock replaces the generation timestamp source.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

func (e *Exporter) Export(ctx context.Context, userID int64, year, month int) (Document, error) {
	r, err := e.source.MonthlyReport(ctx, userID, year, month)
	if err != nil {
		return Document{}, fmt.Errorf("export report: %w", err)
	}
	return FromReport(r, e.now().UTC()), nil
}

// FromReport builds a document with the breakdown sorted by amount
// descending.
func FromReport(r core.MonthlyReport, generatedAt time.Time) Document {
	accounts := r.Accounts
	if accounts == nil {
		accounts = []core.AccountRef{}
	}
	return Document{
		Period:           r.Period,
		TotalIncome:      r.TotalIncome,
		TotalExpenses:    r.TotalExpenses,
		NetBalance:       r.NetBalance,
		TransactionCount: r.TransactionCount,
		Categories:       analytics.Ranked(r.CategoryBreakdown),
		Accounts:         accounts,
		GeneratedAt:      generatedAt,
	}
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	return nil
}

// WriteCSV writes one section,name,value row per figure: summary rows first,
// then categories, then accounts.
func WriteCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"section", "name", "value"},
		{"summary", "period", doc.Period},
		{"summary", "total_income", money(doc.TotalIncome)},
		{"summary", "total_expenses", money(doc.TotalExpenses)},
		{"summary", "net_balance", money(doc.NetBalance)},
		{"summary", "transaction_count", strconv.Itoa(doc.TransactionCount)},
		{"summary", "generated_at", doc.GeneratedAt.Format(time.RFC3339)},
	}
	for _, c := range doc.Categories {
		rows = append(rows, []string{"category", textCell(string(c.Category)), money(c.Amount)})
	}
	for _, a := range doc.Accounts {
		rows = append(rows, []string{"account", strconv.FormatInt(a.ID, 10), textCell(a.Name)})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}

// textCell quotes user text that a spreadsheet would evaluate as a formula.
func textCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
