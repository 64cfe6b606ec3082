// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

// Package procsource implements the wire protocol between the daemon
// and the process-data producer.
//
// The protocol is a synchronous request/response over the producer's
// stdin and stdout: the client writes a single newline byte, the
// producer answers with an 8-byte little-endian payload length
// followed by exactly that many bytes of CBOR encoding a
// []procdata.ProcessData batch.
//
// Keeping the producer a separate process means the expensive /proc
// walk and the NVML handle live outside the daemon, and a crashed
// producer takes down one request instead of the whole session.
package procsource

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nokyan/resources-sub000/lib/codec"
	"github.com/nokyan/resources-sub000/lib/procdata"
)

// triggerByte is the request marker the client sends per batch.
const triggerByte = '\n'

// maxPayloadBytes bounds a single batch. A payload above this is a
// protocol violation, not a big system.
const maxPayloadBytes = 1 << 28

// DefaultReadTimeout bounds how long a request waits for the producer
// before declaring it wedged.
const DefaultReadTimeout = 5 * time.Second

// TimeoutError reports a producer that did not answer within the
// configured read timeout. The client kills the producer when this
// happens; the connection is not reusable afterwards.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("producer did not respond within %v", e.Timeout)
}

// Client talks the producer protocol over a pair of streams, normally
// the stdin and stdout of a spawned producer process.
type Client struct {
	mu      sync.Mutex
	writer  io.Writer
	reader  *bufio.Reader
	timeout time.Duration

	// kill unblocks a wedged read, normally by killing the producer
	// process. Nil for purely stream-backed clients.
	kill func() error

	command *exec.Cmd
	stdin   io.Closer
	broken  bool
}

// Spawn starts the producer binary and returns a connected client.
// Inside a Flatpak sandbox the producer runs on the host via
// flatpak-spawn, where the full /proc is visible.
func Spawn(binary string, timeout time.Duration) (*Client, error) {
	name := binary
	var arguments []string
	if _, err := os.Stat("/.flatpak-info"); err == nil {
		name = "flatpak-spawn"
		arguments = []string{"--host", binary}
	}

	command := exec.Command(name, arguments...)
	command.Stderr = os.Stderr

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("starting producer %s: %w", binary, err)
	}

	client := newClient(stdin, stdout, timeout)
	client.command = command
	client.stdin = stdin
	client.kill = command.Process.Kill
	return client, nil
}

// newClient wires a client over arbitrary streams. Tests use this
// with in-process pipes.
func newClient(writer io.Writer, reader io.Reader, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Client{
		writer:  writer,
		reader:  bufio.NewReader(reader),
		timeout: timeout,
	}
}

// Request triggers one batch and blocks until the producer answers or
// the read timeout elapses. On timeout the producer is killed and a
// *TimeoutError returned; the client must not be reused after that.
func (c *Client) Request() ([]procdata.ProcessData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, errors.New("producer connection is broken")
	}

	if _, err := c.writer.Write([]byte{triggerByte}); err != nil {
		c.broken = true
		return nil, fmt.Errorf("sending trigger: %w", err)
	}

	type result struct {
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := readFrame(c.reader)
		done <- result{payload: payload, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			c.broken = true
			return nil, r.err
		}
		var processes []procdata.ProcessData
		if err := codec.Unmarshal(r.payload, &processes); err != nil {
			c.broken = true
			return nil, fmt.Errorf("decoding batch: %w", err)
		}
		return processes, nil
	case <-timer.C:
		c.broken = true
		if c.kill != nil {
			c.kill()
		}
		return nil, &TimeoutError{Timeout: c.timeout}
	}
}

// readFrame reads one length-prefixed payload.
func readFrame(reader io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return nil, fmt.Errorf("reading length header: %w", err)
	}
	length := binary.LittleEndian.Uint64(header[:])
	if length > maxPayloadBytes {
		return nil, fmt.Errorf("payload length %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return payload, nil
}

// Close shuts the producer down by closing its stdin and reaping the
// process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true

	var errs []error
	if c.stdin != nil {
		errs = append(errs, c.stdin.Close())
	}
	if c.command != nil {
		if err := c.command.Wait(); err != nil {
			var exitError *exec.ExitError
			// A killed producer reports an exit error; that is the
			// expected outcome after a timeout.
			if !errors.As(err, &exitError) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Serve answers trigger bytes on reader with batches from collect
// until EOF. This is the producer side of the protocol; it returns
// nil when the client closes the connection.
func Serve(reader io.Reader, writer io.Writer, collect func() ([]procdata.ProcessData, error)) error {
	in := bufio.NewReader(reader)
	for {
		b, err := in.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading trigger: %w", err)
		}
		if b != triggerByte {
			continue
		}

		processes, err := collect()
		if err != nil {
			return fmt.Errorf("collecting processes: %w", err)
		}
		payload, err := codec.Marshal(processes)
		if err != nil {
			return fmt.Errorf("encoding batch: %w", err)
		}

		var header [8]byte
		binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))
		if _, err := writer.Write(header[:]); err != nil {
			return fmt.Errorf("writing length header: %w", err)
		}
		if _, err := writer.Write(payload); err != nil {
			return fmt.Errorf("writing payload: %w", err)
		}
	}
}
