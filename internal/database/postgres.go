package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/wakewise/notification-engine/internal/scheduler"
)

// PostgresDB wraps sql.DB for the notification audit store. Every scheduled
// notification is written here and kept until the retention purge removes it.
type PostgresDB struct {
	*sql.DB
}

// PostgresConfig holds the connection settings for the audit store
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg PostgresConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// InitSchema initializes the database schema
func (db *PostgresDB) InitSchema() error {
	schema := `
	-- Notification audit table: one row per scheduled notification,
	-- updated through the full lifecycle, purged by retention.
	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		type VARCHAR(50) NOT NULL,
		priority VARCHAR(20) NOT NULL,
		title VARCHAR(255) NOT NULL,
		body TEXT,
		state VARCHAR(20) NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		adapted_at TIMESTAMPTZ NOT NULL,
		escalation_level INTEGER NOT NULL DEFAULT 0,
		max_escalations INTEGER NOT NULL DEFAULT 0,
		delivered BOOLEAN NOT NULL DEFAULT false,
		delivery_attempts INTEGER NOT NULL DEFAULT 0,
		adaptation_reason TEXT,
		user_response VARCHAR(20),
		response_latency_ms BIGINT,
		platform_id VARCHAR(255),
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_notifications_state ON notifications(state);
	CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications(type);
	CREATE INDEX IF NOT EXISTS idx_notifications_adapted_at ON notifications(adapted_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// InsertNotification writes the initial audit row for a notification
func (db *PostgresDB) InsertNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	query := `
		INSERT INTO notifications (id, type, priority, title, body, state, scheduled_at, adapted_at,
		                           escalation_level, max_escalations, delivered, delivery_attempts,
		                           adaptation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := db.ExecContext(ctx, query,
		n.ID, n.Type, n.Priority, n.Title, n.Body, n.State, n.ScheduledAt, n.AdaptedAt,
		n.EscalationLevel, n.MaxEscalations, n.Delivered, n.DeliveryAttempts,
		joinTrace(n.AdaptationTrace), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// UpdateNotification rewrites the mutable lifecycle columns of the audit row
func (db *PostgresDB) UpdateNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	query := `
		UPDATE notifications
		SET priority = $2, state = $3, adapted_at = $4, escalation_level = $5,
		    delivered = $6, delivery_attempts = $7, adaptation_reason = $8,
		    user_response = NULLIF($9, ''), response_latency_ms = $10,
		    platform_id = NULLIF($11, ''), updated_at = $12
		WHERE id = $1
	`
	_, err := db.ExecContext(ctx, query,
		n.ID, n.Priority, n.State, n.AdaptedAt, n.EscalationLevel,
		n.Delivered, n.DeliveryAttempts, joinTrace(n.AdaptationTrace),
		string(n.UserResponse), n.ResponseLatency.Milliseconds(),
		n.PlatformID, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// PurgeBefore removes audit rows older than the cutoff and returns how many
// were deleted. Invoked by the retention job.
func (db *PostgresDB) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged notifications: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func joinTrace(trace []string) string {
	return strings.Join(trace, "; ")
}
