package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var dealsTemplate = template.Must(
	template.New("deals.html.tmpl").Funcs(template.FuncMap{
		"brDate": brDate,
		"money":  func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).ParseFS(templateFS, "templates/deals.html.tmpl"),
)

type dealsView struct {
	RuleName string
	Deals    []deal.Found
}

// Subject returns the mail subject for n deals found by ruleName.
func Subject(n int, ruleName string) string {
	return fmt.Sprintf("🎉 %d Nova(s) Oferta(s) Encontrada(s): %s", n, ruleName)
}

// RenderHTML renders the deal listing mail body.
func RenderHTML(ruleName string, deals []deal.Found) (string, error) {
	var buf bytes.Buffer
	if err := dealsTemplate.Execute(&buf, dealsView{RuleName: ruleName, Deals: deals}); err != nil {
		return "", fmt.Errorf("render deals email: %w", err)
	}
	return buf.String(), nil
}

// brDate formats a date as dd/mm/yyyy. It accepts time.Time or *time.Time.
func brDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("02/01/2006")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("02/01/2006")
	}
	return ""
}
