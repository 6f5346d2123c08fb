package bot

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// RunREPL drives the Bot from stdin, one command per line, until EOF or
// context cancellation. It doubles as the reference transport adapter.
func RunREPL(ctx context.Context, b *Bot) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	fmt.Println(helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			reply, err := b.Handle(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(reply)
		}
	}
}
