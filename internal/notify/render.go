// Package notify renders monthly statements and delivers them by mail.
package notify

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"gastos/internal/core"
)

// RenderStatement formats one user's monthly breakdown as an ASCII
// table: a row per share plus a totals footer. The same text goes into
// email bodies and chat replies.
func RenderStatement(st core.Statement) string {
	var b strings.Builder

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Date", "Category", "Description", "Amount", "Share", "Discount", "Owed"})
	table.SetAutoWrapText(false)

	for _, line := range st.Lines {
		owed := line.Amount.Sub(line.Discount)
		table.Append([]string{
			line.Date.Format("2006-01-02"),
			line.Category,
			line.Description,
			line.ExpenseAmount.String(),
			line.Amount.String(),
			line.Discount.String(),
			owed.String(),
		})
	}

	table.SetFooter([]string{
		"", "", "", "Total",
		st.Subtotal.String(),
		st.Discount.String(),
		st.Total.String(),
	})
	table.Render()

	return b.String()
}

// StatementSubject builds the mail subject line for a statement.
func StatementSubject(st core.Statement) string {
	return fmt.Sprintf("Expenses %04d-%02d: %s to pay", st.Period.Year, st.Period.Month, st.Total.String())
}
