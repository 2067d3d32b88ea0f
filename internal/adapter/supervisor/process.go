package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"am/internal/domain"
)

// DefaultGracePeriod is how long a child may take to exit after SIGTERM
// before it is killed.
const DefaultGracePeriod = 10 * time.Second

// Supervisor runs backend binaries as child processes.
type Supervisor struct {
	logger      domain.Logger
	gracePeriod time.Duration
	tailSize    int
}

// New creates a Supervisor. A non-positive gracePeriod selects
// DefaultGracePeriod.
func New(logger domain.Logger, gracePeriod time.Duration) *Supervisor {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Supervisor{logger: logger, gracePeriod: gracePeriod, tailSize: DefaultTailSize}
}

// Prepare creates a fresh working directory for proc below proc.WorkDir
// (or the system temp dir). The returned release removes it when
// proc.Ephemeral is set and is safe to call more than once.
func (s *Supervisor) Prepare(proc domain.ManagedProcess) (string, func(), error) {
	parent := proc.WorkDir
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, fmt.Errorf("create working directory parent: %w", err)
	}
	dir := filepath.Join(parent, fmt.Sprintf("am-%s-%s", proc.Name, uuid.NewString()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create working directory: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if !proc.Ephemeral {
				s.logger.Info("keeping working directory", "backend", proc.Name, "dir", dir)
				return
			}
			if err := os.RemoveAll(dir); err != nil {
				s.logger.Warn("remove working directory failed", "backend", proc.Name, "dir", dir, "err", err)
			}
		})
	}
	return dir, release, nil
}

// Run starts proc inside dir and blocks until it exits. When ctx is done
// the child's process group gets SIGTERM and, after the grace period, is
// killed; such an exit is not an error. There is no restart.
func (s *Supervisor) Run(ctx context.Context, proc domain.ManagedProcess, dir string) error {
	if ctx.Err() != nil {
		return nil
	}

	stdout := newOutputSink(s.tailSize, s.logger, proc.Name, "stdout")
	stderr := newOutputSink(s.tailSize, s.logger, proc.Name, "stderr")

	cmd := exec.CommandContext(ctx, proc.BinaryPath, proc.Args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = nil
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		s.logger.Info("stopping backend", "backend", proc.Name, "pid", cmd.Process.Pid)
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = s.gracePeriod

	if err := cmd.Start(); err != nil {
		return &domain.SpawnError{Name: proc.Name, Path: proc.BinaryPath, Err: err}
	}
	s.logger.Info("backend started", "backend", proc.Name, "pid", cmd.Process.Pid, "dir", dir)

	err := cmd.Wait()
	stdout.flush()
	stderr.flush()

	if ctx.Err() != nil {
		s.logger.Info("backend stopped", "backend", proc.Name)
		return nil
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &domain.ProcessExitError{
			Name:     proc.Name,
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return fmt.Errorf("%s: %w", proc.Name, err)
}
