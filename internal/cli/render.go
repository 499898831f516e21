package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/spice-cascade/internal/model"
)

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	styled := make([]string, len(headers))
	rules := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = TableHeaderStyle.Render(h)
		rules[i] = strings.Repeat("-", max(len(h), 4))
	}
	fmt.Fprintln(tw, strings.Join(styled, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
	return tw
}

// RenderResult prints one classification outcome.
func RenderResult(w io.Writer, txn model.Transaction, r *model.ClassificationResult) {
	head := fmt.Sprintf("%s  %s  %.2f", txn.Date.Format("2006-01-02"), txn.Description, txn.Amount)
	switch {
	case !r.Success:
		fmt.Fprintln(w, FormatError(head))
		fmt.Fprintf(w, "    %s\n", SubtleStyle.Render(r.Error))
		return
	case r.NeedsReview:
		fmt.Fprintln(w, WarningStyle.Render(ReviewIcon+" "+head))
		fmt.Fprintf(w, "    %s\n", SubtleStyle.Render(r.Reasoning))
	default:
		fmt.Fprintln(w, FormatSuccess(head))
		fmt.Fprintf(w, "    %s  %s  %s\n",
			BoldStyle.Render(r.Classification.Label()),
			ConfidenceStyle(r.Confidence).Render(fmt.Sprintf("%d%%", r.Confidence)),
			SubtleStyle.Render(string(r.Method)))
	}
	for i, s := range r.Suggestions {
		fmt.Fprintf(w, "    %d. %s %s\n", i+1, s.Target.Label(),
			ConfidenceStyle(s.Confidence).Render(fmt.Sprintf("(%d%%)", s.Confidence)))
	}
}

// RenderBatchSummary prints the counters of a batch run.
func RenderBatchSummary(w io.Writer, total, auto, review, failed int, elapsed time.Duration) {
	lines := []string{
		fmt.Sprintf("Total:           %d", total),
		SuccessStyle.Render(fmt.Sprintf("Auto-classified: %d", auto)),
		WarningStyle.Render(fmt.Sprintf("Needs review:    %d", review)),
		ErrorStyle.Render(fmt.Sprintf("Failed:          %d", failed)),
		SubtleStyle.Render(fmt.Sprintf("Elapsed:         %s", elapsed.Round(time.Millisecond))),
	}
	fmt.Fprintln(w, RenderBox("Classification summary", strings.Join(lines, "\n")))
}

// RenderAnalytics prints the metrics dashboard.
func RenderAnalytics(w io.Writer, a *model.Analytics) {
	fmt.Fprintln(w, FormatTitle(fmt.Sprintf("%s Classification analytics (last %d days)", ChartIcon, a.WindowDays)))
	fmt.Fprintf(w, "Total: %d   Needs review: %d   Avg latency: %.1fms   Rules: %d/%d enabled\n\n",
		a.Total, a.NeedsReview, a.AvgLatencyMs, a.Rules.Enabled, a.Rules.Total)

	tw := newTable(w, "Method", "Count", "Share", "Avg confidence", "Avg latency")
	for _, m := range a.Methods {
		share := 0.0
		if a.Total > 0 {
			share = float64(m.Count) / float64(a.Total) * 100
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.1f\t%.1fms\n", m.Method, m.Count, share, m.AvgConfidence, m.AvgLatencyMs)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	if len(a.WeeklyConfidence) > 0 {
		tw = newTable(w, "Week", "Count", "Avg confidence")
		for _, wk := range a.WeeklyConfidence {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\n", wk.Week, wk.Count, wk.AvgConfidence)
		}
		_ = tw.Flush()
		fmt.Fprintln(w)
	}

	tw = newTable(w, "Confidence", "Total", "Corrected", "Accuracy")
	for _, b := range a.Accuracy {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\n", b.Bucket, b.Total, b.Corrected, b.Accuracy*100)
	}
	_ = tw.Flush()

	renderCounts(w, "Top categories", a.TopCategories)
	renderCounts(w, "Top subjects", a.TopSubjects)
}

func renderCounts(w io.Writer, title string, counts []model.NamedCount) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := newTable(w, title, "Count")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Count)
	}
	_ = tw.Flush()
}

// ServiceHealth is one row of the health report.
type ServiceHealth struct {
	Name   string
	Status string
}

// RenderHealth prints service states and capabilities.
func RenderHealth(w io.Writer, services []ServiceHealth, capabilities map[string]bool, errs []string) {
	tw := newTable(w, "Service", "Status")
	for _, s := range services {
		status := s.Status
		switch status {
		case "ok":
			status = SuccessStyle.Render(status)
		case "unavailable":
			status = ErrorStyle.Render(status)
		default:
			status = SubtleStyle.Render(status)
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, status)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	for _, name := range []string{"semantic_search", "indexing"} {
		if capabilities[name] {
			fmt.Fprintln(w, FormatSuccess(name))
		} else {
			fmt.Fprintln(w, FormatWarning(name+" disabled"))
		}
	}
	for _, e := range errs {
		fmt.Fprintln(w, SubtleStyle.Render("  "+e))
	}
}

// RenderRuleSuggestions prints mined rule candidates.
func RenderRuleSuggestions(w io.Writer, report *model.RuleSuggestionReport) {
	s := report.Stats
	fmt.Fprintf(w, "Analyzed %d corrections: %d patterns, %d frequent, %d consistent, %d already covered\n\n",
		s.FeedbackAnalyzed, s.PatternsFound, s.FrequentPatterns, s.ConsistentPatterns, s.AlreadyCovered)

	if len(report.Suggestions) == 0 {
		fmt.Fprintln(w, FormatInfo("No rule suggestions."))
		return
	}

	tw := newTable(w, "Pattern", "Target", "Seen", "Consistency", "Confidence", "Amount range")
	for _, sug := range report.Suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%.0f%%\t%s\t%.2f..%.2f\n",
			sug.Pattern,
			sug.Target.Label(),
			sug.Agreeing, sug.Occurrences,
			sug.Consistency*100,
			ConfidenceStyle(sug.Confidence).Render(fmt.Sprintf("%d", sug.Confidence)),
			sug.MinAmount, sug.MaxAmount)
	}
	_ = tw.Flush()
}

// RenderRules prints the rule set.
func RenderRules(w io.Writer, rules []model.ClassificationRule, labels map[int64]string) {
	if len(rules) == 0 {
		fmt.Fprintln(w, FormatInfo("No rules defined."))
		return
	}
	tw := newTable(w, "ID", "Name", "Priority", "Confidence", "Target", "Enabled")
	for _, r := range rules {
		enabled := SuccessStyle.Render("yes")
		if !r.Enabled {
			enabled = SubtleStyle.Render("no")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Name, r.Priority, r.Confidence, labels[r.ID], enabled)
	}
	_ = tw.Flush()
}

// RenderTaxonomy prints taxonomy entries with their ids.
func RenderTaxonomy(w io.Writer, entries []model.ResolvedTriple) {
	if len(entries) == 0 {
		fmt.Fprintln(w, FormatInfo("Taxonomy is empty."))
		return
	}
	tw := newTable(w, "Category", "Subject", "Detail", "Label")
	for _, e := range entries {
		detail := "-"
		if e.DetailID != nil {
			detail = fmt.Sprintf("%d", *e.DetailID)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.CategoryID, e.SubjectID, detail, e.Label())
	}
	_ = tw.Flush()
}
