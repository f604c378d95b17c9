// Package interactive provides the prompts shown on the console.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers from in and writes prompts to out.
type Prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// WaitForKey shows message and blocks until a key is pressed. On a
// terminal a single keystroke is enough; otherwise a line (or EOF) ends
// the wait.
func (p *Prompter) WaitForKey(message string) error {
	_, _ = fmt.Fprint(p.out, message)
	defer func() { _, _ = fmt.Fprintln(p.out) }()

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, old) }()

		var key [1]byte
		_, err = f.Read(key[:])
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	}

	p.scanner.Scan()
	return p.scanner.Err()
}

// Confirm asks a yes/no question. Anything but y or yes, including EOF,
// is a no.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n] ")

	if !p.scanner.Scan() {
		return false
	}
	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	return input == "y" || input == "yes"
}
