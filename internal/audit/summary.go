package audit

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// WriteSummary renders the check lines with colored pass/fail marks. Color
// is suppressed automatically when the destination is not a terminal.
func WriteSummary(w io.Writer, report *Report, minRatio float64) {
	pass := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "quality audit: %d records\n", report.RecordCount)
	for _, c := range report.Checks(minRatio) {
		mark := pass("✓")
		if !c.Passed {
			mark = fail("✗")
		}
		fmt.Fprintf(w, "  %s %-20s %s\n", mark, c.Name, c.Detail)
	}
}
