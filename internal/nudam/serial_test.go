// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/nudam-gateway/internal/config"
)

const testDevice = "/dev/ttyND0"

// mockPort answers each written command with reply(command).
type mockPort struct {
	mu      sync.Mutex
	reply   func(cmd string) string
	delay   time.Duration
	pending bytes.Buffer
	writes  []string
	resets  int
	closed  bool
	readErr error

	// inFlight is set between a write and the read that drains its answer.
	inFlight bool
	overlap  bool
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.inFlight {
		m.overlap = true
	}
	m.inFlight = true
	m.writes = append(m.writes, string(p))
	if m.reply != nil {
		m.pending.WriteString(m.reply(string(p)))
	}
	delay := m.delay
	m.mu.Unlock()

	time.Sleep(delay)
	return len(p), nil
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.pending.Len() == 0 {
		m.inFlight = false
		return 0, nil
	}
	n, _ := m.pending.Read(p)
	if m.pending.Len() == 0 {
		m.inFlight = false
	}
	return n, nil
}

func (m *mockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.pending.Reset()
	return nil
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPort) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// replies maps complete commands to complete responses.
func replies(table map[string]string) func(string) string {
	return func(cmd string) string {
		return table[cmd]
	}
}

func listOf(ports ...string) Lister {
	return func() ([]string, error) {
		return ports, nil
	}
}

func newTestClient(t *testing.T, checksum bool, mp *mockPort) *Client {
	t.Helper()
	c, err := NewClient(
		config.SerialConfig{Device: testDevice, BaudRate: 9600, Checksum: checksum},
		WithLister(listOf(testDevice)),
		WithOpener(func(config.SerialConfig) (Port, error) { return mp, nil }),
	)
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	return c
}

func TestSerialPort_WriteAndRead(t *testing.T) {
	mp := &mockPort{reply: replies(map[string]string{"#01A\r": ">+001.23\r"})}
	c := newTestClient(t, false, mp)

	resp, err := c.WriteAndRead(context.Background(), []byte("#01A\r"))
	require.NoError(t, err)
	assert.Equal(t, ">+001.23\r", string(resp))
	assert.Equal(t, 1, mp.resets)
}

func TestSerialPort_ResetsStaleInput(t *testing.T) {
	mp := &mockPort{reply: replies(map[string]string{"$01M\r": "!016018\r"})}
	mp.pending.WriteString(">+999.99\r")
	c := newTestClient(t, false, mp)

	name, err := c.ReadModuleName(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "6018", name)
}

func TestSerialPort_Timeout(t *testing.T) {
	mp := &mockPort{}
	c := newTestClient(t, false, mp)

	_, err := c.WriteAndRead(context.Background(), []byte("#01A\r"))
	assert.ErrorIs(t, err, ErrTimeout)

	// Partial answer without end marker
	mp.reply = func(string) string { return ">+001" }
	_, err = c.WriteAndRead(context.Background(), []byte("#01A\r"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSerialPort_DeadlineErrorIsTimeout(t *testing.T) {
	mp := &mockPort{readErr: context.DeadlineExceeded}
	c := newTestClient(t, false, mp)

	_, err := c.WriteAndRead(context.Background(), []byte("#01A\r"))
	assert.ErrorIs(t, err, ErrTimeout)

	mp.readErr = errors.New("device unplugged")
	_, err = c.WriteAndRead(context.Background(), []byte("#01A\r"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestSerialPort_ResponseTooLong(t *testing.T) {
	mp := &mockPort{reply: func(string) string { return ">" + strings.Repeat("1", 200) + "\r" }}
	c := newTestClient(t, false, mp)

	_, err := c.WriteAndRead(context.Background(), []byte("#01A\r"))
	assert.ErrorIs(t, err, ErrUnrecognizedResponse)

	// 128 characters plus the end marker still fit
	mp.reply = func(string) string { return ">" + strings.Repeat("1", 127) + "\r" }
	resp, err := c.WriteAndRead(context.Background(), []byte("#01A\r"))
	require.NoError(t, err)
	assert.Len(t, resp, 129)
}

func TestSerialPort_Closed(t *testing.T) {
	mp := &mockPort{reply: replies(map[string]string{"#01A\r": ">+001.23\r"})}
	c, err := NewClient(
		config.SerialConfig{Device: testDevice, BaudRate: 9600},
		WithLister(listOf(testDevice)),
		WithOpener(func(config.SerialConfig) (Port, error) { return mp, nil }),
	)
	require.NoError(t, err)

	_, err = c.ReadAllAnalogDataChannels(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPortClosed)

	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Open(context.Background()))
	_, err = c.ReadAllAnalogDataChannels(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, mp.closed)

	_, err = c.ReadAllAnalogDataChannels(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPortClosed)
	assert.Len(t, mp.Writes(), 1)
}

func TestSerialPort_OpenFails(t *testing.T) {
	c, err := NewClient(
		config.SerialConfig{Device: testDevice, BaudRate: 9600},
		WithLister(listOf(testDevice)),
		WithOpener(func(config.SerialConfig) (Port, error) { return nil, errors.New("busy") }),
	)
	require.NoError(t, err)

	err = c.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), testDevice)

	_, err = c.ReadModuleName(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestSerialPort_CanceledBeforeWrite(t *testing.T) {
	mp := &mockPort{reply: replies(map[string]string{"#01A\r": ">+001.23\r"})}
	c := newTestClient(t, false, mp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReadAllAnalogDataChannels(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mp.Writes())
}

func TestSerialPort_ExchangesDoNotInterleave(t *testing.T) {
	mp := &mockPort{
		delay: 2 * time.Millisecond,
		reply: func(cmd string) string {
			// "#01N\r" answers channel N
			return ">+00" + cmd[3:4] + ".00\r"
		},
	}
	c := newTestClient(t, false, mp)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]float64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			results[ch], errs[ch] = c.ReadAnalogDataFromChannelN(context.Background(), 1, ch)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.InDelta(t, float64(i), results[i], 1e-9)
	}
	assert.False(t, mp.overlap, "exchanges overlapped on the bus")
	assert.Len(t, mp.Writes(), workers)
}

func TestSerialPort_CloseWaitsForExchange(t *testing.T) {
	mp := &mockPort{
		delay: 50 * time.Millisecond,
		reply: replies(map[string]string{"#01A\r": ">+001.23\r"}),
	}
	c := newTestClient(t, false, mp)

	done := make(chan error, 1)
	go func() {
		_, err := c.ReadAllAnalogDataChannels(context.Background(), 1)
		done <- err
	}()

	// Let the exchange take the bus, then close underneath it
	require.Eventually(t, func() bool { return len(mp.Writes()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.NoError(t, <-done)
}
