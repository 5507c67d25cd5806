// Package aligner runs the PALADIN aligner.
package aligner

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrAlignFailed = errors.New("alignment failed")

// Runner aligns the reads of input against reference, writing results under the output base name.
type Runner interface {
	Align(ctx context.Context, reference, input, output string, options []string) error
}

// Exec runs the aligner binary as a child process.
type Exec struct {
	binary string
	logger *zap.Logger
}

// NewExec creates a runner for binary. A nil logger is replaced by a no-op logger.
func NewExec(binary string, logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Exec{binary: binary, logger: logger}
}

// Align runs `<binary> align reference input -o output options...` and stores the combined
// output of the process in <output>.log, including when the process fails.
func (e *Exec) Align(ctx context.Context, reference, input, output string, options []string) error {
	args := append([]string{"align", reference, input, "-o", output}, options...)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	e.logger.Debug("running aligner", zap.String("binary", e.binary), zap.Strings("args", args))
	combined, runErr := cmd.CombinedOutput()

	logPath := output + ".log"
	err := os.WriteFile(logPath, combined, 0o644)
	if err != nil {
		return errors.Wrapf(err, "unable to write aligner log %s", logPath)
	}
	if runErr != nil {
		return errors.Wrapf(ErrAlignFailed, "%s: %s (see %s)", input, runErr, logPath)
	}

	return nil
}
