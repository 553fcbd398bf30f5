package analysis

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// OutputLine is a single line of analyzer stdio, carried to the log and
// to live WebSocket subscribers. Output is diagnostic only and never
// parsed for control signals.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
	Done      bool      `json:"done,omitempty"`
}

type processResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// runProcess executes a command and sends each line of output to the
// channel. The channel is closed when the process exits.
func runProcess(ctx context.Context, name string, args []string, output chan<- OutputLine) *processResult {
	defer close(output)

	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return &processResult{ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return &processResult{ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &processResult{ExitCode: -1, Err: fmt.Errorf("start: %w", err)}
	}

	var stdoutBuf, stderrBuf strings.Builder

	done := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			output <- OutputLine{Timestamp: time.Now(), Stream: "stdout", Line: line}
		}
		done <- struct{}{}
	}()

	go func() {
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			output <- OutputLine{Timestamp: time.Now(), Stream: "stderr", Line: line}
		}
		done <- struct{}{}
	}()

	// Wait for both readers to finish
	<-done
	<-done

	exitCode := 0
	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return &processResult{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Err:      waitErr,
	}
}
