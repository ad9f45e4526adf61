package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// Executor runs a claimed job on local hardware
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// LogExecutor only logs jobs; used for dry runs
type LogExecutor struct {
	logger *slog.Logger
}

func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) Execute(_ context.Context, job Job) error {
	e.logger.Info("Dry run print",
		slog.Int64("job_id", job.ID),
		slog.String("document", job.DocumentName),
		slog.String("url", job.DocumentURL),
		slog.String("printer", job.PrinterName),
		slog.Int("copies", job.Copies),
		slog.Bool("duplex", job.Duplex),
		slog.String("orientation", string(job.Orientation)),
	)
	return nil
}

// maxOutputInError bounds how much command output is kept in a failure message
const maxOutputInError = 512

// CommandExecutor runs a configured program with the prepared payload as JSON on stdin.
// Job details are also exported as PRINT_RELAY_* environment variables.
type CommandExecutor struct {
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

func NewCommandExecutor(command []string, timeout time.Duration, logger *slog.Logger) (*CommandExecutor, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("command executor needs a program to run")
	}
	return &CommandExecutor{command: command, timeout: timeout, logger: logger}, nil
}

func (e *CommandExecutor) Execute(ctx context.Context, job Job) error {
	if job.Payload == nil {
		return fmt.Errorf("job %d has no prepared payload", job.ID)
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"PRINT_RELAY_JOB_ID="+strconv.FormatInt(job.ID, 10),
		"PRINT_RELAY_DOCUMENT_URL="+job.DocumentURL,
		"PRINT_RELAY_DOCUMENT_NAME="+job.DocumentName,
		"PRINT_RELAY_PRINTER="+job.PrinterName,
		"PRINT_RELAY_COPIES="+strconv.Itoa(job.Copies),
		"PRINT_RELAY_DUPLEX="+strconv.FormatBool(job.Duplex),
		"PRINT_RELAY_ORIENTATION="+string(job.Orientation),
	)
	cmd.WaitDelay = time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", e.command[0], ctx.Err())
		}
		return fmt.Errorf("%s failed: %w: %s", e.command[0], err, truncate(output))
	}

	e.logger.Info("Print command finished",
		slog.Int64("job_id", job.ID),
		slog.String("command", e.command[0]),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func truncate(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxOutputInError {
		s = domain.TruncateUTF8(s, maxOutputInError) + "..."
	}
	return s
}
