package ui

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

// Editor is a LineSource with Emacs-style line editing and a persistent
// history file. Ctrl-C and Ctrl-D both end input.
type Editor struct {
	rl *readline.Instance
}

// NewEditor opens a line editor on the terminal. historyFile may be empty.
func NewEditor(prompt, historyFile string, historySize int) (*Editor, error) {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:                 prompt,
		HistoryFile:            historyFile,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, err
	}
	return &Editor{rl: rl}, nil
}

// ReadLine implements LineSource. Non-blank lines are saved to history.
func (e *Editor) ReadLine() (string, error) {
	line, err := e.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		e.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

// Close restores the terminal.
func (e *Editor) Close() error {
	return e.rl.Close()
}

// IsInteractive reports whether f is a terminal. Editors inside Emacs shells
// get plain line input.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && os.Getenv("INSIDE_EMACS") == ""
}
