package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

const (
	exitOK        = 0
	exitDrift     = 2
	exitFail      = 4
	exitPlanError = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitCode(err)
}

// usageError marks bad invocations.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return exitPlanError
	case errors.Is(err, migrator.ErrIncompatibleBranch),
		errors.Is(err, migrator.ErrIncompleteOffline),
		errors.Is(err, migrator.ErrInvalidCatalog):
		return exitDrift
	case errors.Is(err, migrator.ErrOfflineBacklog),
		errors.Is(err, migrator.ErrBaselineNotFound):
		return exitPlanError
	}
	return exitFail
}
