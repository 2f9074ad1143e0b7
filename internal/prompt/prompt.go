// Package prompt asks the user for missing credentials.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a line was entered.
var ErrNoInput = errors.New("no input")

// Prompter reads answers from in and writes questions to out.
type Prompter struct {
	in  *os.File
	r   *bufio.Reader
	out io.Writer
}

// New returns a Prompter. Questions go to out, usually os.Stderr.
func New(in *os.File, out io.Writer) *Prompter {
	return &Prompter{in: in, r: bufio.NewReader(in), out: out}
}

// Interactive reports whether input comes from a terminal.
func (p *Prompter) Interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Line asks for one line of input.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Secret asks for a value without echoing it when input is a terminal.
// Piped input is read as a plain line.
func (p *Prompter) Secret(label string) (string, error) {
	if !p.Interactive() {
		return p.Line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(int(p.in.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
