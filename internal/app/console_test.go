package app

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := readLines(ctx, strings.NewReader("stop\ntext hello\n"))

	assert.Equal(t, "stop", <-lines)
	assert.Equal(t, "text hello", <-lines)

	_, ok := <-lines
	assert.False(t, ok, "channel closes on EOF")
}

func TestReadLinesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A pipe that stays open: without cancellation the scanner would sit in
	// Read forever once the consumer is gone.
	pr, pw := io.Pipe()
	defer pw.Close()

	lines := readLines(ctx, pr)

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, "first", <-lines)

	// Consumer goes away; the next scanned line must not block the sender.
	cancel()
	_, err = pw.Write([]byte("orphaned\n"))
	require.NoError(t, err)

	select {
	case _, ok := <-lines:
		assert.False(t, ok, "channel must close, not deliver, after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("line reader still running after cancel")
	}
}
