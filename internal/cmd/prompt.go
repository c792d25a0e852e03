package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// linePrompter asks yes/no questions on a line-oriented terminal. An empty answer means yes.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

var answers = map[string]bool{"yes": true, "y": true, "ye": true, "no": false, "n": false}

// Confirm implements sync.Prompter.
func (p *linePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		_, _ = fmt.Fprintf(p.out, "%s ['Enter' for Y] [Y/n] ", question)
		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read answer: %w", err)
		}

		// Enter and end of input both take the default.
		choice := strings.ToLower(strings.TrimSpace(line))
		if choice == "" {
			return true, nil
		}
		if answer, ok := answers[choice]; ok {
			return answer, nil
		}
		_, _ = fmt.Fprintln(p.out, "Please respond with 'yes' or 'no' (or 'y' or 'n').")
	}
}
