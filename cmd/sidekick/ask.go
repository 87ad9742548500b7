package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sidekick/internal/domain"
)

func newAskCmd(s *session) *cobra.Command {
	var voice bool

	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a question or take a note",
		Long: `Ask a question about the current book, look up a word, or take a note.

Start with "note" to save a note instead of asking:
  sidekick ask note Silver lies about the map

With --voice the microphone records until Enter is pressed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := s.services.Orchestrator
			ctx := cmd.Context()

			question := strings.TrimSpace(strings.Join(args, " "))
			if !voice && question == "" {
				return fmt.Errorf("a question is required, or use --voice")
			}

			// Each question drops a marker at the saved audiobook position.
			if _, err := o.OpenAsk(ctx); err != nil {
				return err
			}
			defer o.CloseAsk()

			var (
				result domain.TurnResult
				err    error
			)
			if voice {
				if err := o.StartListening(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Listening... press Enter to stop.")
				if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
					o.Cancel()
					return fmt.Errorf("read stdin: %w", err)
				}
				result, err = o.StopListening(ctx)
			} else {
				result, err = o.SubmitText(ctx, question)
			}
			if err != nil {
				return err
			}

			if voice {
				fmt.Fprintf(cmd.ErrOrStderr(), "> %s\n", result.Question)
			}
			o.WaitSpeech()
			return nil
		},
	}

	cmd.Flags().BoolVar(&voice, "voice", false, "record the question from the microphone")
	return cmd
}
