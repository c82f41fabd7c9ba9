// Package workdir owns the process working directory for the duration of a build step.
//
// The working directory is process-wide state. Callers must not use it from several goroutines at once; the
// helpers here only guarantee that the previous directory is restored on every exit path.
package workdir

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
)

// Guard remembers the directory that was current before Enter was called
type Guard struct {
	previous string
	restored bool
}

// Enter switches to dir and returns a Guard which restores the previous working directory
func Enter(dir string) (*Guard, error) {
	previous, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read the current working directory")
	}

	if err := os.Chdir(dir); err != nil {
		return nil, eris.Wrapf(err, "failed to change into %s", dir)
	}

	return &Guard{previous: previous}, nil
}

// Previous returns the directory that Restore switches back to
func (g *Guard) Previous() string {
	return g.previous
}

// Restore switches back to the previous directory. Calling it more than once is a no-op.
func (g *Guard) Restore() error {
	if g.restored {
		return nil
	}

	if err := os.Chdir(g.previous); err != nil {
		return eris.Wrapf(err, "failed to restore working directory %s", g.previous)
	}

	g.restored = true
	return nil
}

// Within runs fn with dir as the working directory. The previous directory is restored even if fn fails or
// panics; a failed restore is appended to fn's error.
func Within(dir string, fn func() error) (err error) {
	guard, err := Enter(dir)
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, guard.Restore())
	}()

	return fn()
}
