package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/wytcherly/foreman/internal/database"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/internal/model/convert"
)

func newReportCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "report --db file.db",
		Short: "Summarise a sqlite session dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return errors.New("report: --db is required")
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("report: %w", err)
			}
			db, err := database.GetSqliteDB(dbPath)
			if err != nil {
				return fmt.Errorf("report: open %s: %w", dbPath, err)
			}
			return writeReport(cmd.OutOrStdout(), db)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite file written by the sqlite storage backend")
	return cmd
}

// writeReport prints one block per recorded session.
func writeReport(w io.Writer, db *gorm.DB) error {
	var sessions []model.Session
	if err := db.Order("start_time").Find(&sessions).Error; err != nil {
		return fmt.Errorf("report: sessions: %w", err)
	}
	style := newStyles(w)
	if len(sessions) == 0 {
		fmt.Fprintln(w, style.muted.Render("no sessions recorded"))
		return nil
	}

	for _, s := range sessions {
		sess := convert.SessionToCore(s)
		fmt.Fprintln(w, style.header.Render(fmt.Sprintf("Session %q (%s) started %s, version %s",
			sess.Name, sess.ID, sess.StartTime.UTC().Format("2006-01-02 15:04:05"), sess.ExtensionVersion)))

		var assignments []model.Assignment
		if err := db.Where("session_id = ?", s.ID).Order("time").Find(&assignments).Error; err != nil {
			return fmt.Errorf("report: assignments: %w", err)
		}
		fmt.Fprintf(w, "  assignments: %d\n", len(assignments))
		for _, a := range assignments {
			ev := convert.AssignmentToCore(a)
			fmt.Fprintf(w, "    %s -> %s (%s, %.1fm)\n", ev.WorkerID, ev.SiteID, ev.TaskType, ev.Distance)
		}

		var transitions []model.StateTransition
		if err := db.Where("session_id = ?", s.ID).Order("time").Find(&transitions).Error; err != nil {
			return fmt.Errorf("report: transitions: %w", err)
		}
		counts := make(map[string]int)
		var order []string
		for _, t := range transitions {
			tr := convert.StateTransitionToCore(t)
			key := tr.From + " -> " + tr.To
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
		fmt.Fprintf(w, "  transitions: %d\n", len(transitions))
		for _, key := range order {
			fmt.Fprintf(w, "    %-20s x%d\n", key, counts[key])
		}

		var last model.StatusReport
		err := db.Where("session_id = ?", s.ID).Order("time desc").First(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fmt.Fprintln(w, "  last report: "+style.muted.Render("none"))
		case err != nil:
			return fmt.Errorf("report: status reports: %w", err)
		default:
			fmt.Fprintf(w, "  last report: %s\n", convert.StatusReportToCore(last).String())
		}
	}
	return nil
}
