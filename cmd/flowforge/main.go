// Command flowforge is the operator CLI: import, validate, run and schedule workflows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flowforge:", err)
		stop()
		os.Exit(1)
	}
}
