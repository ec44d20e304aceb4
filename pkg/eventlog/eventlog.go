// Package eventlog records client connections and served exchange requests
// in an append-only text file.
package eventlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluko123/go-fxrate-server/rates"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	separator  = "====================================="
)

// Sink receives session events
type Sink interface {
	Connected(clientID string, at time.Time, table *rates.Table) error
	Disconnected(clientID string, at time.Time) error
	Request(clientID, from, to string, result decimal.Decimal) error
	Close() error
}

// FileSink appends events to a file. Each event is written with a single
// Write call under a mutex, so concurrent sessions never interleave lines.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFile opens (or creates) path for appending
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Connected(clientID string, at time.Time, table *rates.Table) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s connected\n", at.Format(timeLayout), clientID)
	if table != nil {
		b.WriteString("Currency Rates at connection:\n")
		for _, e := range table.Entries() {
			fmt.Fprintf(&b, "Currency: %s, Rate: %s\n", e.Code, e.Rate.String())
		}
	}
	b.WriteString(separator + "\n")
	return s.write(b.String())
}

func (s *FileSink) Disconnected(clientID string, at time.Time) error {
	return s.write(fmt.Sprintf("%s - %s disconnected\n%s\n", at.Format(timeLayout), clientID, separator))
}

func (s *FileSink) Request(clientID, from, to string, result decimal.Decimal) error {
	return s.write(fmt.Sprintf("Client request from %s: %s to %s : %s\n", clientID, from, to, result.String()))
}

func (s *FileSink) write(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	_, err := s.file.WriteString(entry)
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Discard is a Sink that drops every event
var Discard Sink = discard{}

type discard struct{}

func (discard) Connected(string, time.Time, *rates.Table) error { return nil }

func (discard) Disconnected(string, time.Time) error { return nil }

func (discard) Request(string, string, string, decimal.Decimal) error { return nil }

func (discard) Close() error { return nil }
