// Package report renders an EvaluationSummary as human-readable text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// Write renders the summary sections: distribution, score statistics,
// detection effectiveness, top records, fraud cross-tab and final tally.
func Write(w io.Writer, s domain.EvaluationSummary) error {
	p := &printer{w: w}

	p.line("RISK SCORING RESULTS")
	p.line(strings.Repeat("=", 50))

	p.line("")
	p.line("1. Risk Category Distribution:")
	for _, c := range s.Distribution {
		p.printf("   %s: %s transactions (%.1f%%)\n", c.Category, Thousands(c.Count), c.Percent)
	}

	p.line("")
	p.line("2. Risk Score Statistics:")
	p.printf("   Average Risk Score: %.1f\n", s.Scores.Mean)
	p.printf("   Median Risk Score: %.1f\n", s.Scores.Median)
	p.printf("   Min Risk Score: %d\n", s.Scores.Min)
	p.printf("   Max Risk Score: %d\n", s.Scores.Max)

	p.line("")
	p.line("3. Fraud Detection Effectiveness:")
	d := s.Detection
	if d.Precision == nil {
		p.line("   No HIGH risk transactions; precision and recall not computed")
	} else {
		p.printf("   HIGH Risk Precision: %.1f%% (%d/%d high-risk are fraud)\n",
			*d.Precision*100, d.FraudInHigh, d.TotalHigh)
		if d.Recall != nil {
			p.printf("   HIGH Risk Recall: %.1f%% (%d/%d frauds caught in high-risk)\n",
				*d.Recall*100, d.FraudInHigh, d.TotalFraud)
		} else {
			p.line("   No fraudulent transactions; recall not computed")
		}
	}

	p.line("")
	p.printf("4. Top %d Highest Risk Transactions:\n", len(s.Top))
	p.table(func(tw io.Writer) {
		fmt.Fprintln(tw, "   transaction_id\tcountry\tchannel\tdevice\tamount\trisk_score\trisk_category\tis_fraud")
		for _, st := range s.Top {
			fmt.Fprintf(tw, "   %s\t%s\t%s\t%s\t%.2f\t%d\t%s\t%t\n",
				st.TransactionID, st.Country, st.Channel, st.Device,
				st.Amount, st.RiskScore, st.RiskCategory, st.IsFraud)
		}
	})

	p.line("")
	p.line("5. Risk Score Breakdown by Actual Fraud Status:")
	p.line("")
	p.line("   Counts:")
	p.crossTab(s.CrossTab, func(r domain.CrossTabRow, c domain.RiskCategory) string {
		return strconv.Itoa(r.Counts[c])
	})
	p.line("")
	p.line("   Percentages:")
	p.crossTab(s.CrossTab, func(r domain.CrossTabRow, c domain.RiskCategory) string {
		return fmt.Sprintf("%.1f", r.Percents[c])
	})

	p.line("")
	p.printf("Scored %s transactions\n", Thousands(s.Total))
	for _, c := range s.Distribution {
		p.printf("  %-6s %s\n", c.Category, Thousands(c.Count))
	}
	if d.Recall != nil {
		p.printf("HIGH risk category captures %.1f%% of all fraud cases\n", *d.Recall*100)
	}
	if d.Precision != nil {
		p.printf("%.1f%% of HIGH risk transactions are actually fraudulent\n", *d.Precision*100)
	}

	return p.err
}

// Thousands formats n with comma separators.
func Thousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// printer keeps the first write error so the render code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) line(s string) {
	p.printf("%s\n", s)
}

func (p *printer) table(fill func(tw io.Writer)) {
	if p.err != nil {
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fill(tw)
	p.err = tw.Flush()
}

func (p *printer) crossTab(ct domain.CrossTab, cell func(domain.CrossTabRow, domain.RiskCategory) string) {
	p.table(func(tw io.Writer) {
		fmt.Fprint(tw, "   is_fraud")
		for _, c := range domain.RiskCategories {
			fmt.Fprintf(tw, "\t%s", c)
		}
		fmt.Fprintln(tw)
		for _, row := range []domain.CrossTabRow{ct.NotFraud, ct.Fraud} {
			fmt.Fprintf(tw, "   %t", row.IsFraud)
			for _, c := range domain.RiskCategories {
				fmt.Fprintf(tw, "\t%s", cell(row, c))
			}
			fmt.Fprintln(tw)
		}
	})
}
