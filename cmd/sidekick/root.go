package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"sidekick/internal/bootstrap"
	"sidekick/internal/domain"
)

// session holds the services shared by every subcommand of one invocation.
type session struct {
	services bootstrap.Services
}

// close releases the data store if a subcommand opened it.
func (s *session) close() error {
	return s.services.Close()
}

func newRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:           "sidekick",
		Short:         "Audiobook sidekick in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap.Build(cmd.Context(), bootstrap.Surface{
				Events: &printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()},
			})
			if err != nil {
				return err
			}
			s.services = services
			return nil
		},
	}

	root.AddCommand(
		newAskCmd(s),
		newHistoryCmd(s),
		newNotesCmd(s),
		newSettingsCmd(s),
		newBooksCmd(s),
	)
	return root
}

// printer streams answer text to the terminal.
type printer struct {
	out    io.Writer
	errOut io.Writer

	mu       sync.Mutex
	streamed bool
	failed   bool
}

func (p *printer) TurnStateChanged(state domain.TurnState, _ domain.TurnStateReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = state == domain.TurnStateError
}

func (p *printer) AnswerChunk(fragment string, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamed = true
	fmt.Fprint(p.out, fragment)
}

func (p *printer) TurnCompleted(domain.TurnResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamed {
		fmt.Fprintln(p.out)
		p.streamed = false
	}
}

// TurnError prints recoverable problems. Failed turns surface as the
// command's own error.
func (p *printer) TurnError(code domain.ErrorCode, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return
	}
	fmt.Fprintf(p.errOut, "warning: %s: %s\n", code, detail)
}
