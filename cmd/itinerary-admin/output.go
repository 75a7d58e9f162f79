package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/target/itinerary/internal/domain/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func printJob(w io.Writer, job *model.Job) error {
	if job == nil {
		return nil
	}
	if err := writef(w, "Job %s\n", job.ID); err != nil {
		return err
	}
	if err := writef(w, "  From:       %s\n  To:         %s\n  Email:      %s\n",
		job.StartingAddress, job.DestinationAddress, job.Email); err != nil {
		return err
	}
	if err := writef(w, "  Completion: %s\n  Notified:   %s\n\n",
		job.Completion(), renderTime(job.NotifiedAt)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Branch\tState\tResult"); err != nil {
		return fmt.Errorf("write branch header: %w", err)
	}
	for _, b := range model.AllBranches() {
		slot := job.Slot(b)
		result := "-"
		if len(slot.Result) > 0 {
			result = string(slot.Result)
		}
		if err := writef(tw, "%s\t%s\t%s\n", b, slot.State, result); err != nil {
			return fmt.Errorf("write branch %s: %w", b, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if job.NotifyClaimExpiresAt != nil && job.NotifiedAt == nil {
		return writef(w, "\nNotification claim held until %s\n", renderTime(job.NotifyClaimExpiresAt))
	}
	return nil
}

func printStatus(w io.Writer, update *model.JobStatusUpdate) error {
	if update == nil {
		return nil
	}
	details := "-"
	if update.Details != nil {
		details = *update.Details
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Job\tStatus\tDetails\tTimestamp"); err != nil {
		return err
	}
	if err := writef(tw, "%s\t%s\t%s\t%s\n", update.JobID, update.Status, details,
		update.Timestamp.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tw.Flush()
}

func printRenotify(w io.Writer, jobID string, observed model.CompletionStatus, published bool) error {
	if published {
		return writef(w, "published %s completion for job %s\n", observed, jobID)
	}
	return writef(w, "job %s was already notified or is claimed by another handler\n", jobID)
}

func renderTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
