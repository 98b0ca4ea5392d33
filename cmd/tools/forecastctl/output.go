package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
)

// formatMAPE renders MAPE as a percentage, or n/a when every actual was zero
func formatMAPE(a forecast.Accuracy) string {
	if !a.HasMAPE() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", a.MAPE)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printSession(w io.Writer, sess *session.Session) error {
	if outputJSON {
		return printJSON(w, sess)
	}

	fmt.Fprintf(w, "Session:     %s (%s)\n", sess.Name, sess.ID)
	fmt.Fprintf(w, "Source:      %s, %s over %s\n", sess.DataSource, sess.Periodicity, sess.DateRange)
	fmt.Fprintf(w, "History:     %d points\n", len(sess.HistoricalData))
	fmt.Fprintf(w, "Modified:    %s\n\n", sess.LastModified.Format("2006-01-02 15:04:05"))

	tw := table(w)
	fmt.Fprintln(tw, "SCENARIO\tMETHOD\tDATE\tPREDICTED\tLOWER\tUPPER\tCONFIDENCE")
	for _, sr := range sess.OrderedResults() {
		if len(sr.Results) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\tfailed\t\t\t\n", sr.Scenario.ID, sr.Scenario.Method)
			continue
		}
		for _, r := range sr.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.3f\n",
				sr.Scenario.ID, r.Method, r.Date.Format(analytics.DateLayout),
				r.PredictedValue, r.LowerBound, r.UpperBound, r.Confidence)
		}
	}
	return tw.Flush()
}

func printSessions(w io.Writer, sessions []*session.Session) error {
	if outputJSON {
		return printJSON(w, sessions)
	}

	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tPERIODICITY\tRANGE\tSCENARIOS\tMODIFIED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Name, s.DataSource, s.Periodicity, s.DateRange, len(s.Scenarios),
			s.LastModified.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func printBest(w io.Writer, best *session.ScenarioResult) error {
	if outputJSON {
		return printJSON(w, best)
	}

	fmt.Fprintf(w, "Best scenario: %s (%s, %s)\n", best.Scenario.Name, best.Scenario.ID, best.Scenario.Method)
	if best.Accuracy != nil {
		fmt.Fprintf(w, "R² %.4f  MAPE %s  RMSE %.2f  MAE %.2f\n\n",
			best.Accuracy.R2, formatMAPE(*best.Accuracy), best.Accuracy.RMSE, best.Accuracy.MAE)
	}

	tw := table(w)
	fmt.Fprintln(tw, "DATE\tPREDICTED\tLOWER\tUPPER")
	for _, r := range best.Results {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n",
			r.Date.Format(analytics.DateLayout), r.PredictedValue, r.LowerBound, r.UpperBound)
	}
	return tw.Flush()
}

func printAccuracy(w io.Writer, summary *services.AccuracySummary) error {
	if outputJSON {
		return printJSON(w, summary)
	}

	tw := table(w)
	fmt.Fprintln(tw, "SCENARIO\tMETHOD\tR²\tMAPE\tRMSE\tMAE\tTEST")
	for _, row := range summary.Scenarios {
		switch {
		case !row.Forecasted:
			fmt.Fprintf(tw, "%s\t%s\tfailed\t\t\t\t\n", row.ScenarioID, row.Method)
		case row.Accuracy == nil:
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t0\n", row.ScenarioID, row.Method)
		default:
			a := row.Accuracy
			fmt.Fprintf(tw, "%s\t%s\t%.4f\t%s\t%.2f\t%.2f\t%d\n",
				row.ScenarioID, row.Method, a.R2, formatMAPE(*a), a.RMSE, a.MAE, a.TestSize)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nScored %d, failed %d, mean R² %.4f\n", summary.Scored, summary.Failed, summary.MeanR2)
	if summary.BestScenarioID != "" {
		fmt.Fprintf(w, "Best: %s\n", summary.BestScenarioID)
	}
	return nil
}

func printPoints(w io.Writer, points []analytics.TimeSeriesPoint) error {
	if outputJSON {
		return printJSON(w, points)
	}

	tw := table(w)
	fmt.Fprintln(tw, "PERIOD\tVALUE\tCOUNT")
	for _, p := range points {
		count, ok := p.Metadata["count"]
		if !ok {
			count = "-"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%v\n", p.Time.Format(analytics.DateLayout), p.Value, count)
	}
	return tw.Flush()
}

func printRefresh(w io.Writer, report *services.RefreshReport) error {
	if outputJSON {
		failed := make(map[string]string, len(report.Failed))
		for _, f := range report.Failed {
			failed[string(f.Source)] = f.Err.Error()
		}
		return printJSON(w, map[string]interface{}{"refreshed": report.Refreshed, "failed": failed})
	}

	for _, src := range report.Refreshed {
		fmt.Fprintf(w, "refreshed  %s\n", src)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "FAILED     %s: %v\n", f.Source, f.Err)
	}
	return nil
}

// lockedWriter serializes output from concurrent subscription handlers
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(fn func(io.Writer) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.w)
}

func printEvent(w io.Writer, at time.Time, subject string, data []byte) error {
	if outputJSON {
		var event interface{} = string(data)
		if json.Valid(data) {
			event = json.RawMessage(data)
		}
		line, err := json.Marshal(map[string]interface{}{
			"received_at": at.UTC().Format(time.RFC3339),
			"subject":     subject,
			"event":       event,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(line))
		return err
	}

	_, err := fmt.Fprintf(w, "%s  %-28s %s\n", at.Format("15:04:05"), subject, data)
	return err
}
