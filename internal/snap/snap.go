// Package snap invokes the external graph-processing engine that performs
// calibration, cloud masking and collocation. The engine is a black box:
// this package builds its parameters, runs it with a timeout, and validates
// that it produced usable output.
package snap

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rkm/senprep/internal/catalog"
)

// ProcessingError reports a failed engine invocation: non-zero exit,
// timeout, or missing output. Unit-local and never retried automatically;
// the entry is not finalized, so a later rerun retries cleanly.
type ProcessingError struct {
	Pair catalog.ProductPair
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed for pair %s: %v", e.Pair.Key(), e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Params carries one engine invocation's named parameters.
type Params struct {
	GraphFile       string
	S1Source        string
	S2Source        string
	CollocateMaster string
	S1Output        string
	S2Output        string
	BandsS1         []string
	BandsS2         []string
	ROIWKT          string
}

// Args renders the engine command line: the graph file followed by -P
// parameter assignments.
func (p Params) Args() []string {
	return []string{
		p.GraphFile,
		"-PS1=" + p.S1Source,
		"-PS2=" + p.S2Source,
		"-PCollocate_master=" + p.CollocateMaster,
		"-PS1_write_path=" + p.S1Output,
		"-PS2_write_path=" + p.S2Output,
		"-Pbands_S1=" + strings.Join(p.BandsS1, ","),
		"-Pbands_S2=" + strings.Join(p.BandsS2, ","),
		"-PROI=" + p.ROIWKT,
	}
}

// Processor is the external engine capability. Implementations: the real
// GPT binary, or a test double that writes synthetic rasters.
type Processor interface {
	Invoke(ctx context.Context, p Params) error
}

// GPT runs the engine binary as a blocking external call.
type GPT struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGPT creates a GPT processor. A timeout of zero disables the deadline.
func NewGPT(bin string, timeout time.Duration) *GPT {
	return &GPT{bin: bin, timeout: timeout, logger: slog.Default()}
}

// WithLogger sets a custom logger for the processor.
func (g *GPT) WithLogger(logger *slog.Logger) *GPT {
	g.logger = logger
	return g
}

// Invoke runs the graph. A deadline overrun surfaces as an error like any
// other engine failure; timeout is a cause, not a distinct outcome.
func (g *GPT) Invoke(ctx context.Context, p Params) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, g.bin, p.Args()...)

	g.logger.InfoContext(ctx, "invoking processing graph",
		slog.String("graph", p.GraphFile),
		slog.String("master", p.CollocateMaster),
	)
	started := time.Now()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("engine timed out after %s: %w", time.Since(started).Round(time.Second), ctxErr)
		}
		return fmt.Errorf("engine exited with error: %w: %s", err, tail(output, 2048))
	}

	g.logger.InfoContext(ctx, "processing graph finished",
		slog.String("graph", p.GraphFile),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// tail returns the last n bytes of engine output, where the error usually is.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
