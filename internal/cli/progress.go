package cli

import (
	"io"
	"sync"
	"time"

	"github.com/barndoor/barndoor-cli/internal/oauth"

	"github.com/briandowns/spinner"
)

// Progress shows a spinner with a status message on an interactive
// terminal. A quiet Progress prints nothing.
type Progress struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
}

// NewProgress creates a spinner that writes to w.
func NewProgress(w io.Writer, quiet bool) *Progress {
	if quiet {
		return &Progress{}
	}
	return &Progress{
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

// Update starts the spinner if needed and replaces its message.
func (p *Progress) Update(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner == nil {
		return
	}
	p.spinner.Suffix = " " + msg
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

// Stop stops the spinner and clears its line.
func (p *Progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil && p.spinner.Active() {
		p.spinner.Stop()
	}
}

// LoginObserver returns a flow state observer that keeps the spinner
// message in step with a login. The spinner only starts once the login
// URL has been opened or printed, and stops on a terminal state.
func (p *Progress) LoginObserver() func(oauth.FlowState) {
	return func(state oauth.FlowState) {
		if state.IsTerminal() {
			p.Stop()
			return
		}
		if msg := loginMessage(state); msg != "" {
			p.Update(msg)
		}
	}
}

func loginMessage(state oauth.FlowState) string {
	switch state {
	case oauth.StateAwaitingCallback:
		return "Waiting for you to finish signing in..."
	case oauth.StateCodeReceived, oauth.StateExchanging:
		return "Exchanging authorization code..."
	default:
		return ""
	}
}
