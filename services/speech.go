package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/blavejr/bookmatch/models"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultSpeechRate   = 175
	DefaultSpeechVolume = 1.0
)

// SpeechRenderer turns text into a complete WAV buffer.
type SpeechRenderer interface {
	Render(ctx context.Context, text string, rate int, volume float64) ([]byte, error)
}

// ESpeakRenderer shells out to espeak-ng, one process per call. Calls past
// the concurrency limit wait for a free slot or for ctx to end.
type ESpeakRenderer struct {
	Binary  string
	Timeout time.Duration
	sem     *semaphore.Weighted
}

func NewESpeakRenderer(binary string, timeout time.Duration, maxConcurrent int) *ESpeakRenderer {
	if binary == "" {
		binary = "espeak-ng"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ESpeakRenderer{
		Binary:  binary,
		Timeout: timeout,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (r *ESpeakRenderer) Render(ctx context.Context, text string, rate int, volume float64) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", models.ErrInvalidArgument)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: rate must be positive, got %d", models.ErrInvalidArgument, rate)
	}
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("%w: volume must be between 0 and 1, got %v", models.ErrInvalidArgument, volume)
	}

	path, err := exec.LookPath(r.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: speech engine %q not found: %w", models.ErrServiceUnavailable, r.Binary, err)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	startTime := time.Now()
	cmd := exec.CommandContext(ctx, path,
		"--stdout",
		"-s", strconv.Itoa(rate),
		"-a", strconv.Itoa(int(volume*100+0.5)),
		"--stdin",
	)
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("speech rendering aborted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with %d: %s", models.ErrServiceUnavailable,
				r.Binary, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: failed to run %s: %w", models.ErrServiceUnavailable, r.Binary, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no audio", models.ErrServiceUnavailable, r.Binary)
	}

	log.Printf("Rendered %d characters to %d bytes of audio in %v", len(text), stdout.Len(), time.Since(startTime))
	return stdout.Bytes(), nil
}
