// Command arazzorun is the CLI collaborator of SPEC_FULL.md's AMBIENT
// STACK: a cobra command tree, outside the durable-execution core per
// spec.md §1, that drives the core packages (document/validate/plan/
// openapi/scheduler) against a sqlite-backed store.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	if tracer != nil {
		_ = tracer.Shutdown(context.Background())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
