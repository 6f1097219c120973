package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	if xerr := new(exitError); errors.As(err, &xerr) {
		cancel()
		os.Exit(xerr.status)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	cancel()
	os.Exit(1)
}
