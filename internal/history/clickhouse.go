// Package history stores one row per prediction in ClickHouse.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/Brownie44l1/fer-light/internal/model"
)

const createPredictionsTable = `
	CREATE TABLE IF NOT EXISTS emotion_predictions (
		timestamp        DateTime64(3),
		request_id       String,
		light_id         String,
		emotion          LowCardinality(String),
		confidence       Float32,
		brightness       UInt8,
		actuator_success Bool,
		actuator_error   String
	) ENGINE = MergeTree()
	ORDER BY (light_id, timestamp)
	TTL toDateTime(timestamp) + INTERVAL 90 DAY
`

const insertPrediction = `
	INSERT INTO emotion_predictions
		(timestamp, request_id, light_id, emotion, confidence, brightness, actuator_success, actuator_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Config holds ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Store appends predictions to the emotion_predictions table.
type Store struct {
	conn    execer
	lightID string
	close   func() error
	logger  *zap.Logger
}

// Open connects, pings and creates the table if needed.
func Open(ctx context.Context, config Config, lightID string, logger *zap.Logger) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := newStore(conn, lightID, logger)
	s.close = conn.Close
	if err := s.InitSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	s.logger.Info("connected to ClickHouse", zap.String("addr", config.Addr))
	return s, nil
}

func newStore(conn execer, lightID string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{conn: conn, lightID: lightID, logger: logger.Named("history")}
}

// InitSchema creates the predictions table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createPredictionsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Record inserts one prediction.
func (s *Store) Record(ctx context.Context, result model.InferenceResult) error {
	err := s.conn.Exec(ctx, insertPrediction,
		result.Timestamp,
		result.RequestID,
		s.lightID,
		result.Emotion.String(),
		result.Confidence,
		uint8(result.Brightness),
		result.ActuatorSuccess,
		result.ActuatorError,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
