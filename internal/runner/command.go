package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

// FilePlaceholder in Command.Args is replaced with the script's disk path.
const FilePlaceholder = "{file}"

// Command runs scripts through an external client such as psql, mysql or
// sqlcmd. When no argument contains FilePlaceholder the script text is
// written to the client's stdin instead.
type Command struct {
	Name string
	Args []string
	Env  []string
}

func (c *Command) RunScript(ctx context.Context, s Script, r migrator.Reporter) error {
	args, usesFile := c.expand(s)
	if usesFile && s.DiskPath == "" {
		return fmt.Errorf("%s: script is not on disk and %s expects a file", s.Name, c.Name)
	}
	cmd := exec.CommandContext(ctx, c.Name, args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	if !usesFile {
		cmd.Stdin = strings.NewReader(s.Text)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}

	// stdout must be drained before Wait closes the pipe
	forward(stdout, r)

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s: %s", ErrScriptFailed, s.Name, msg)
	}
	return nil
}

func (c *Command) expand(s Script) ([]string, bool) {
	usesFile := false
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if strings.Contains(a, FilePlaceholder) {
			usesFile = true
			a = strings.ReplaceAll(a, FilePlaceholder, s.DiskPath)
		}
		args[i] = a
	}
	return args, usesFile
}

func forward(rd io.Reader, r migrator.Reporter) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			r.Report(line)
		}
	}
	_, _ = io.Copy(io.Discard, rd)
}
