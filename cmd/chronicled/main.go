package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// A canceled context means a clean signal-driven shutdown; the
		// daemon has already logged it.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "chronicled: %v\n", err)
		}
		os.Exit(1)
	}
}
