// Package runner executes migration and stored code scripts against the
// target store.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

var ErrScriptFailed = errors.New("script failed")

// Script is the text of one script file.
type Script struct {
	Name string
	// Path is the location inside the source filesystem; DiskPath is set
	// only when the file also exists on local disk.
	Path     string
	DiskPath string
	Text     string
}

// Runner executes scripts in a target store.
type Runner interface {
	RunScript(ctx context.Context, s Script, r migrator.Reporter) error
}

// Action binds a script to the runner that executes it.
type Action struct {
	Runner Runner
	Script Script
}

func (a Action) Run(ctx context.Context, r migrator.Reporter) error {
	if a.Runner == nil {
		return fmt.Errorf("%s: no runner configured", a.Script.Name)
	}
	return a.Runner.RunScript(ctx, a.Script, r)
}
