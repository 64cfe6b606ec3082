// Copyright 2026 The Resources Authors
// SPDX-License-Identifier: Apache-2.0

package procsource

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nokyan/resources-sub000/lib/procdata"
)

// pipePair wires a client to an in-process Serve loop.
func pipePair(t *testing.T, collect func() ([]procdata.ProcessData, error)) *Client {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	go func() {
		Serve(serverReader, serverWriter, collect)
		serverWriter.Close()
	}()
	t.Cleanup(func() {
		clientWriter.Close()
		clientReader.Close()
	})

	return newClient(clientWriter, clientReader, time.Second)
}

func TestRequestRoundtrip(t *testing.T) {
	cgroup := "org.gnome.Builder"
	batch := []procdata.ProcessData{
		{
			Pid:         42,
			Comm:        "gnome-builder",
			UserCPUTime: 1234,
			Memory:      200_000_000,
			Cgroup:      &cgroup,
			TimestampMs: 1700000000000,
		},
		{
			Pid:  43,
			Comm: "kworker/0:1",
		},
	}

	client := pipePair(t, func() ([]procdata.ProcessData, error) {
		return batch, nil
	})

	processes, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(processes) != 2 {
		t.Fatalf("got %d processes, want 2", len(processes))
	}
	if processes[0].Pid != 42 || processes[0].Comm != "gnome-builder" {
		t.Errorf("first process = %+v", processes[0])
	}
	if processes[0].Cgroup == nil || *processes[0].Cgroup != cgroup {
		t.Errorf("Cgroup = %v, want %q", processes[0].Cgroup, cgroup)
	}
	if processes[1].Cgroup != nil {
		t.Errorf("kernel thread Cgroup = %v, want nil", processes[1].Cgroup)
	}
}

func TestRequestRepeated(t *testing.T) {
	calls := 0
	client := pipePair(t, func() ([]procdata.ProcessData, error) {
		calls++
		return []procdata.ProcessData{{Pid: int32(calls)}}, nil
	})

	for want := int32(1); want <= 3; want++ {
		processes, err := client.Request()
		if err != nil {
			t.Fatalf("Request %d: %v", want, err)
		}
		if len(processes) != 1 || processes[0].Pid != want {
			t.Errorf("Request %d = %+v", want, processes)
		}
	}
}

func TestRequestEmptyBatch(t *testing.T) {
	client := pipePair(t, func() ([]procdata.ProcessData, error) {
		return nil, nil
	})

	processes, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(processes) != 0 {
		t.Errorf("got %d processes, want 0", len(processes))
	}
}

func TestRequestTimeoutKillsProducer(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	go io.Copy(io.Discard, serverReader)

	killed := false
	client := newClient(clientWriter, clientReader, 20*time.Millisecond)
	client.kill = func() error {
		killed = true
		serverWriter.Close()
		return nil
	}

	_, err := client.Request()
	var timeoutError *TimeoutError
	if !errors.As(err, &timeoutError) {
		t.Fatalf("Request error = %v, want TimeoutError", err)
	}
	if !killed {
		t.Error("timeout did not kill the producer")
	}

	// A broken client refuses further requests.
	if _, err := client.Request(); err == nil {
		t.Error("Request on broken client succeeded")
	}
}

func TestRequestOversizedPayload(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	go func() {
		in := make([]byte, 1)
		serverReader.Read(in)
		var header [8]byte
		binary.LittleEndian.PutUint64(header[:], maxPayloadBytes+1)
		serverWriter.Write(header[:])
	}()

	client := newClient(clientWriter, clientReader, time.Second)
	if _, err := client.Request(); err == nil {
		t.Fatal("oversized payload accepted")
	}
}

func TestServeIgnoresStrayBytes(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	go func() {
		Serve(serverReader, serverWriter, func() ([]procdata.ProcessData, error) {
			return []procdata.ProcessData{{Pid: 7}}, nil
		})
	}()
	t.Cleanup(func() {
		clientWriter.Close()
		clientReader.Close()
	})

	// Noise before the trigger must not desynchronize the stream.
	if _, err := clientWriter.Write([]byte{0x00, 0x01}); err != nil {
		t.Fatalf("writing noise: %v", err)
	}

	client := newClient(clientWriter, clientReader, time.Second)
	processes, err := client.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(processes) != 1 || processes[0].Pid != 7 {
		t.Errorf("processes = %+v", processes)
	}
}

func TestServeStopsOnEOF(t *testing.T) {
	serverReader, clientWriter := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Serve(serverReader, io.Discard, func() ([]procdata.ProcessData, error) {
			return nil, nil
		})
	}()

	clientWriter.Close()
	if err := <-done; err != nil {
		t.Errorf("Serve after EOF = %v, want nil", err)
	}
}
