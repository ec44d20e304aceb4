package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluko123/go-fxrate-server/rates"
)

func openTestSink(t *testing.T) (*FileSink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server_log.txt")
	s, err := OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestFileSink_Formats(t *testing.T) {
	s, path := openTestSink(t)
	at := time.Date(2026, 10, 19, 9, 5, 3, 0, time.Local)
	table := rates.NewTable("UAH", []rates.Entry{{Code: "USD", Rate: decimal.RequireFromString("41.25")}})

	require.NoError(t, s.Connected("127.0.0.1:5000", at, table))
	require.NoError(t, s.Request("127.0.0.1:5000", "USD", "UAH", decimal.RequireFromString("41.25")))
	require.NoError(t, s.Disconnected("127.0.0.1:5000", at.Add(time.Minute)))

	assert.Equal(t, []string{
		"2026-10-19 09:05:03 - 127.0.0.1:5000 connected",
		"Currency Rates at connection:",
		"Currency: USD, Rate: 41.25",
		"Currency: UAH, Rate: 1",
		separator,
		"Client request from 127.0.0.1:5000: USD to UAH : 41.25",
		"2026-10-19 09:06:03 - 127.0.0.1:5000 disconnected",
		separator,
	}, readLines(t, path))
}

func TestFileSink_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Request("c", "A", "B", decimal.Zero))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"existing", "Client request from c: A to B : 0"}, readLines(t, path))
}

func TestFileSink_ConcurrentWritesDoNotInterleave(t *testing.T) {
	s, path := openTestSink(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Request("client", "USD", "EUR", decimal.RequireFromString("0.93"))
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, path)
	require.Len(t, lines, 1000)
	for _, l := range lines {
		assert.Equal(t, "Client request from client: USD to EUR : 0.93", l)
	}
}

func TestFileSink_WriteAfterClose(t *testing.T) {
	s, _ := openTestSink(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Disconnected("c", time.Now()), os.ErrClosed)
	assert.NoError(t, s.Close())
}

func TestOpenFile_BadPath(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing", "log.txt"))
	assert.Error(t, err)
}
