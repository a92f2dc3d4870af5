// Package report reads the calibration_results table directly and prints
// accuracy summaries, for use against a database the API does not front.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"cardscan/pkg/calibration"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Report is the overall and per-text accuracy since a point in time.
type Report struct {
	Since   time.Time
	Overall calibration.Summary
	ByText  []calibration.GroupSummary
}

// Open connects to postgres through the pgx database/sql driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

const query = `SELECT expected_text, confidence, is_correct, is_almost_correct, contains_text
FROM calibration_results
WHERE "timestamp" >= $1
ORDER BY "timestamp"`

// Load aggregates every result stored at or after since.
func Load(ctx context.Context, db *sql.DB, since time.Time) (Report, error) {
	rows, err := db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return Report{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []calibration.Entry
	for rows.Next() {
		var e calibration.Entry
		if err := rows.Scan(&e.ExpectedText, &e.Confidence, &e.IsCorrect, &e.IsAlmostCorrect, &e.ContainsText); err != nil {
			return Report{}, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Report{}, err
	}
	return Report{
		Since:   since,
		Overall: calibration.Summarize(entries),
		ByText:  calibration.SummarizeByExpectedText(entries),
	}, nil
}

// Print writes the report as aligned text. top limits the per-text table;
// zero prints every group.
func (r Report) Print(w io.Writer, top int) error {
	o := r.Overall
	fmt.Fprintf(w, "Calibration report since %s (UTC):\n", r.Since.UTC().Format("2006-01-02"))
	fmt.Fprintf(w, "  records=%d correct=%d almost=%d contains=%d incorrect=%d\n",
		o.Total, o.Correct, o.AlmostCorrect, o.ContainsText, o.Incorrect)
	fmt.Fprintf(w, "  accuracy=%.2f%% almost=%.2f%% contains=%.2f%% avg_confidence=%.2f\n",
		o.Accuracy, o.AlmostCorrectRate, o.ContainsTextRate, o.AverageConfidence)
	if len(r.ByText) == 0 {
		return nil
	}

	groups := r.ByText
	if top > 0 && len(groups) > top {
		groups = groups[:top]
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPECTED\tTOTAL\tACCURACY\tALMOST\tCONTAINS\tAVG CONF")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			g.ExpectedText, g.Total, g.Accuracy, g.AlmostCorrectRate, g.ContainsTextRate, g.AverageConfidence)
	}
	return tw.Flush()
}
