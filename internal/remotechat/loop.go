package remotechat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	banner    = "AI Chatbot is running! Type 'quit' to exit."
	quitInput = "quit"
)

// Loop reads one prompt per line from r and writes each reply to w until the
// user types quit (any case), r is exhausted or ctx is done. Blank lines are
// ignored.
func (c *Chatter) Loop(ctx context.Context, r io.Reader, w io.Writer) error {
	if _, err := fmt.Fprintln(w, banner); err != nil {
		return err
	}

	reader := bufio.NewReader(r)
	for {
		if _, err := fmt.Fprint(w, "You: "); err != nil {
			return err
		}
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}
		if readErr != nil && line == "" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if strings.EqualFold(input, quitInput) {
			return nil
		}
		if input != "" {
			if _, err := fmt.Fprintf(w, "AI: %s\n", c.Reply(ctx, input)); err != nil {
				return err
			}
		}
		if readErr != nil {
			return nil
		}
	}
}
