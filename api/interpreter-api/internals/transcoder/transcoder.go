// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

const (
	// Upstream transcription expects 16-bit little-endian mono PCM at 24 kHz.
	OutputSampleRate = 24000
	OutputChannels   = 1

	readBufferSize = 4096
)

// Callbacks receives transcoder output. OnData is called from a single
// goroutine with each decoded PCM fragment; exactly one of OnFinished or
// OnError follows the last OnData.
type Callbacks struct {
	OnData     func(pcm []byte)
	OnFinished func()
	OnError    func(err error)
}

// Transcoder converts a stream of opaque container/codec chunks into raw PCM.
// One instance serves one live conversation and cannot be restarted.
type Transcoder interface {
	// Write feeds one compressed chunk. It back-pressures on the decoder's
	// input buffer and fails after Finalize or Stop.
	Write(chunk []byte) error

	// Finalize signals end of input. Remaining PCM is flushed to OnData and
	// then OnFinished fires.
	Finalize() error

	// Stop kills the decoder without flushing. Safe to call at any time.
	Stop()
}

type ffmpegTranscoder struct {
	logger commons.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu        sync.Mutex
	finalized bool
	stopped   bool
}

// NewFfmpegTranscoder launches the decoder process and starts pumping its
// output to cb. ffmpegPath is the binary to execute.
func NewFfmpegTranscoder(ctx context.Context, logger commons.Logger, ffmpegPath string, cb Callbacks) (Transcoder, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", OutputChannels),
		"-ar", fmt.Sprintf("%d", OutputSampleRate),
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open decoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open decoder stdout: %w", err)
	}

	t := &ffmpegTranscoder{
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
	}
	cmd.Stderr = &t.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder %s: %w", ffmpegPath, err)
	}
	logger.Debugf("transcoder started: pid=%d", cmd.Process.Pid)

	utils.Go(logger, func() {
		t.pump(stdout, cb)
	})
	return t, nil
}

// pump reads decoded PCM until the process closes its output, then reaps it
// and reports the terminal event.
func (t *ffmpegTranscoder) pump(stdout io.Reader, cb Callbacks) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 && cb.OnData != nil {
			pcm := make([]byte, n)
			copy(pcm, buf[:n])
			cb.OnData(pcm)
		}
		if err != nil {
			break
		}
	}

	waitErr := t.cmd.Wait()

	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}

	if waitErr != nil {
		detail := strings.TrimSpace(t.stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		t.logger.Errorf("transcoder exited abnormally: %s", detail)
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("decoder failed: %s", detail))
		}
		return
	}
	if cb.OnFinished != nil {
		cb.OnFinished()
	}
}

func (t *ffmpegTranscoder) Write(chunk []byte) error {
	t.mu.Lock()
	if t.finalized || t.stopped {
		t.mu.Unlock()
		return fmt.Errorf("transcoder is closed")
	}
	stdin := t.stdin
	t.mu.Unlock()

	if len(chunk) == 0 {
		return nil
	}
	// The pipe write back-pressures when the decoder stalls; it must happen
	// outside mu so Stop can still close the pipe and kill the process.
	if _, err := stdin.Write(chunk); err != nil {
		return fmt.Errorf("failed to write chunk to decoder: %w", err)
	}
	return nil
}

func (t *ffmpegTranscoder) Finalize() error {
	t.mu.Lock()
	if t.finalized || t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.finalized = true
	stdin := t.stdin
	t.mu.Unlock()

	if err := stdin.Close(); err != nil {
		return fmt.Errorf("failed to close decoder input: %w", err)
	}
	return nil
}

func (t *ffmpegTranscoder) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
}
