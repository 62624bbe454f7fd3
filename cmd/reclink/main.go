package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reclink/internal/failure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) || errors.Is(err, failure.ErrJudgeUnavailable) {
			fmt.Fprintln(os.Stderr, err)
			if hint := failure.Hint(err); hint != "" && failure.Kind(err) != "internal" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
			}
		}
		stop()
		os.Exit(1)
	}
}
