package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"sidekick/internal/books"
	"sidekick/internal/domain"
)

func newSettingsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print settings as YAML (the API key is masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			current := s.services.Settings.Get()
			current.APIKey = maskKey(current.APIKey)
			out, err := yaml.Marshal(current)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	set := &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Change one or more settings",
		Long: `Change one or more settings.

Keys: api-key, system-prompt, voice, book, debug, silent, economy,
prewarm, use-book-context. Boolean keys take true or false.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next := s.services.Settings.Get()
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				if err := applySetting(&next, s.services.Catalog, key, value); err != nil {
					return err
				}
			}
			_, err := s.services.Settings.Update(cmd.Context(), func(st *domain.Settings) { *st = next })
			return err
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

// applySetting writes one key into st.
func applySetting(st *domain.Settings, catalog *books.Catalog, key string, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "api-key":
		st.APIKey = value
	case "system-prompt":
		if value == "" {
			value = domain.DefaultSystemPrompt
		}
		st.SystemPrompt = value
	case "voice":
		st.VoiceID = value
	case "book":
		book, ok := catalog.Get(value)
		if !ok {
			return fmt.Errorf("unknown book %q", value)
		}
		st.CurrentBookID = book.ID
		st.CurrentBookTitle = book.Title
	case "debug", "silent", "economy", "prewarm", "use-book-context":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "debug":
			st.Debug = b
		case "silent":
			st.Silent = b
		case "economy":
			st.EconomyMode = b
		case "prewarm":
			st.Prewarm = b
		case "use-book-context":
			st.UseBookContext = b
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
}

func newBooksCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books and manage their grounding text",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			current := s.services.Settings.Get().CurrentBookID
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, b := range s.services.Catalog.List() {
				mark := " "
				if b.ID == current {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", mark, b.ID, b.Title)
			}
			return w.Flush()
		},
	}

	contextCmd := &cobra.Command{
		Use:   "context <book-id> [file]",
		Short: "Show a book's saved grounding text, or replace it from a file",
		Long: `Show a book's saved grounding text, or replace it from a markdown file.
Pass "-" to read stdin, or an empty file to remove it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID := args[0]
			if _, ok := s.services.Catalog.Get(bookID); !ok {
				return fmt.Errorf("unknown book %q", bookID)
			}

			if len(args) == 1 {
				bc, ok, err := s.services.BookContexts.Get(cmd.Context(), bookID)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "No saved context; the built-in summary is used.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), bc.Markdown)
				return nil
			}

			var (
				data []byte
				err  error
			)
			if args[1] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}
			bc, err := s.services.BookContexts.Save(cmd.Context(), bookID, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d characters for %s.\n", len([]rune(bc.Markdown)), bookID)
			return nil
		},
	}

	cmd.AddCommand(list, contextCmd)
	return cmd
}
