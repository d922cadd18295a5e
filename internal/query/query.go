// Package query builds Gmail search expressions for invoice runs.
package query

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006/01/02"

// Build assembles the search expression for one date-range run. The end date
// is inclusive: Gmail's before: operator is exclusive, so one day is added.
// Keywords containing spaces are quoted; the label, when set, is always
// quoted.
func Build(keywords []string, dateFrom, dateTo time.Time, label string, exts []string) string {
	var b strings.Builder

	if len(keywords) > 0 {
		quoted := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if strings.Contains(k, " ") {
				k = `"` + k + `"`
			}
			quoted = append(quoted, k)
		}
		fmt.Fprintf(&b, "subject:(%s)", strings.Join(quoted, " OR "))
	}

	if len(exts) > 0 {
		filters := make([]string, 0, len(exts))
		for _, e := range exts {
			filters = append(filters, "filename:"+strings.ToLower(strings.TrimPrefix(e, ".")))
		}
		fmt.Fprintf(&b, " has:attachment (%s)", strings.Join(filters, " OR "))
	}

	fmt.Fprintf(&b, " after:%s before:%s",
		dateFrom.Format(dateLayout),
		dateTo.AddDate(0, 0, 1).Format(dateLayout),
	)

	if label != "" {
		fmt.Fprintf(&b, " label:%q", label)
	}

	return strings.TrimSpace(b.String())
}
