package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-light/internal/emotion"
	"github.com/Brownie44l1/fer-light/internal/model"
)

type call struct {
	query string
	args  []any
}

type fakeConn struct {
	calls []call
	err   error
}

func (c *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	c.calls = append(c.calls, call{query, args})
	return c.err
}

func TestInitSchema(t *testing.T) {
	conn := &fakeConn{}
	s := newStore(conn, "1", nil)

	require.NoError(t, s.InitSchema(context.Background()))
	require.Len(t, conn.calls, 1)
	assert.Contains(t, conn.calls[0].query, "CREATE TABLE IF NOT EXISTS emotion_predictions")
}

func TestRecord(t *testing.T) {
	conn := &fakeConn{}
	s := newStore(conn, "3", nil)

	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	err := s.Record(context.Background(), model.InferenceResult{
		RequestID:     "abc",
		Timestamp:     ts,
		Emotion:       emotion.Sad,
		Confidence:    0.42,
		Brightness:    20,
		ActuatorError: "light update failed: bridge returned HTTP 503",
	})
	require.NoError(t, err)

	require.Len(t, conn.calls, 1)
	c := conn.calls[0]
	assert.True(t, strings.Contains(c.query, "INSERT INTO emotion_predictions"))
	assert.Equal(t, []any{
		ts, "abc", "3", "Sad", float32(0.42), uint8(20), false,
		"light update failed: bridge returned HTTP 503",
	}, c.args)
}

func TestRecordError(t *testing.T) {
	s := newStore(&fakeConn{err: errors.New("connection reset")}, "1", nil)

	err := s.Record(context.Background(), model.InferenceResult{Emotion: emotion.Happy})
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
