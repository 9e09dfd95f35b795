package test

import (
	"bytes"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// simulator plays a bus of NuDAM modules on the far end of a serial line.
// Every command is answered from answers; unknown commands get no reply.
type simulator struct {
	port io.ReadWriteCloser

	mu       sync.Mutex
	answers  map[string]string
	commands []string

	done chan struct{}
}

func startSimulator(device string, answers map[string]string) (*simulator, error) {
	port, err := serial.Open(&serial.Config{
		Address:  device,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	s := &simulator{port: port, answers: answers, done: make(chan struct{})}
	go s.serve()
	return s, nil
}

func (s *simulator) serve() {
	defer close(s.done)
	var line bytes.Buffer
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		if err != nil && !errors.Is(err, serial.ErrTimeout) {
			return
		}
		for _, b := range buf[:n] {
			line.WriteByte(b)
			if b != '\r' {
				continue
			}
			cmd := line.String()
			line.Reset()

			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			answer, ok := s.answers[cmd]
			s.mu.Unlock()
			if !ok {
				log.Printf("simulator: no answer for %q", cmd)
				continue
			}
			if _, err := s.port.Write([]byte(answer)); err != nil {
				return
			}
		}
	}
}

// Commands returns the commands received so far.
func (s *simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *simulator) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}
