// corebridge - a two-core quote pipeline: QOTD in, echo round-trip, serial out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"corebridge/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "corebridge: %v\n", err)
		os.Exit(1)
	}
}
