package capture

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable marks acquisition failures where the input device is busy
// or missing, as opposed to other device I/O faults.
var ErrUnavailable = errors.New("input device unavailable")

var errDeviceClosed = errors.New("device closed")

// Device delivers fixed-size chunks of interleaved signed 16-bit PCM from
// an audio input. Exactly one component may hold an open Device at a time.
type Device interface {
	// Open acquires the device exclusively and starts the input stream.
	Open(sampleRate, channels, chunkFrames int) error
	// Read blocks until one chunk is available. After Stop it returns an
	// error to unblock the reader.
	Read() ([]int16, error)
	// Stop halts the input stream. Safe to call when not open.
	Stop() error
	// Close releases the device handle. Safe to call when not open.
	Close() error
}

// MockDevice is an in-memory Device used in tests and headless runs. It
// serves queued chunks and then blocks until stopped, or loops over the
// queue when Loop is set.
type MockDevice struct {
	OpenErr   error
	ReadErr   error // returned once the queue is exhausted
	ReadDelay time.Duration
	Loop      bool

	mu      sync.Mutex
	chunks  [][]int16
	idx     int
	opened  bool
	opens   int
	stopped chan struct{}
}

func NewMockDevice(chunks ...[]int16) *MockDevice {
	return &MockDevice{chunks: chunks}
}

func (d *MockDevice) Open(sampleRate, channels, chunkFrames int) error {
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.opens++
	d.idx = 0
	d.stopped = make(chan struct{})
	return nil
}

func (d *MockDevice) Read() ([]int16, error) {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped == nil {
		return nil, errDeviceClosed
	}

	if d.ReadDelay > 0 {
		select {
		case <-time.After(d.ReadDelay):
		case <-stopped:
			return nil, errDeviceClosed
		}
	}

	d.mu.Lock()
	if d.idx < len(d.chunks) {
		chunk := d.chunks[d.idx]
		d.idx++
		if d.Loop && d.idx == len(d.chunks) {
			d.idx = 0
		}
		d.mu.Unlock()
		out := make([]int16, len(chunk))
		copy(out, chunk)
		return out, nil
	}
	d.mu.Unlock()

	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	<-stopped
	return nil, errDeviceClosed
}

func (d *MockDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped != nil {
		select {
		case <-d.stopped:
		default:
			close(d.stopped)
		}
	}
	return nil
}

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

// Opens reports how many times the device was acquired.
func (d *MockDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Opened reports whether the device is currently held.
func (d *MockDevice) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}
