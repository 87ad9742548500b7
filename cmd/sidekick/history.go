package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sidekick/internal/store"
	"sidekick/internal/usecase"
)

func newHistoryCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the conversation log",
	}

	var (
		filter string
		limit  int
		pairs  bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.HistoryFilter(filter)
			switch f {
			case store.FilterAll, store.FilterNotes, store.FilterQA:
			default:
				return fmt.Errorf("unknown filter %q (want all, notes or qa)", filter)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if pairs {
				for _, ex := range usecase.PairHistory(s.services.History.Filter(f, limit)) {
					fmt.Fprintf(w, "%s\tQ\t%s\n", ex.Question.Timestamp, ex.Question.Content)
					if ex.Answer != nil {
						fmt.Fprintf(w, "%s\tA\t%s\n", ex.Answer.Timestamp, ex.Answer.Content)
					}
				}
				return w.Flush()
			}
			for _, e := range s.services.History.Filter(f, limit) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp, e.Role, e.Content)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&filter, "filter", string(store.FilterAll), "all, notes or qa")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries, 0 for all")
	list.Flags().BoolVar(&pairs, "pairs", false, "group questions with their answers")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the conversation log and all note markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			if err := store.ClearAll(cmd.Context(), s.services.History, s.services.Notes); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History and notes cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm")

	cmd.AddCommand(list, clearCmd)
	return cmd
}

func newNotesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage note markers",
	}

	var bookID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List markers for a book, ordered by position",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookID == "" {
				bookID = s.services.Settings.Get().CurrentBookID
			}
			history := s.services.History.List()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, m := range s.services.Notes.ForBook(bookID) {
				target := m.Preview
				if target == "" {
					if entry, ok := usecase.MarkerTarget(m, history); ok {
						target = entry.Content
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, formatPosition(m.TimeSec), target)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&bookID, "book", "", "book id (defaults to the current book)")

	remove := &cobra.Command{
		Use:   "delete <marker-id>",
		Short: "Delete a marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.services.Notes.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func formatPosition(seconds float64) string {
	total := int(seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
