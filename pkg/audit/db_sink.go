package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// EventRecord is the gorm model for one persisted audit event. Adapted
// from the teacher's AssetSnapshotRecord (internal/db/transaction_recorder.go):
// same varchar-column-per-scalar-field style, metadata collapsed into a
// single JSON text column since it's genuinely free-form (spec.md §4.10).
type EventRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	EventType string    `gorm:"type:varchar(48);index;not null"`
	Severity  string    `gorm:"type:varchar(16);index;not null"`
	Component string    `gorm:"type:varchar(64);index;not null"`
	Message   string    `gorm:"type:text;not null"`
	Metadata  string    `gorm:"type:text"` // JSON-encoded map[string]string
	User      string    `gorm:"type:varchar(64);index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (EventRecord) TableName() string {
	return "audit_events"
}

// DBSink persists audit events via gorm+MySQL. A write failure is logged
// and swallowed — spec.md §6 requires the sink never raise on
// back-pressure or storage failure.
type DBSink struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewDBSink opens a MySQL connection and auto-migrates the audit_events
// table. dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewDBSink(dsn string, log zerolog.Logger) (*DBSink, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}
	return &DBSink{db: db, log: log}, nil
}

// NewDBSinkWithDB wraps an already-open gorm DB, auto-migrating the
// audit_events table, for callers that open the connection themselves.
func NewDBSinkWithDB(db *gorm.DB, log zerolog.Logger) (*DBSink, error) {
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}
	return &DBSink{db: db, log: log}, nil
}

func (s *DBSink) LogEvent(e types.AuditEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.User == "" {
		e.User = "system"
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		s.log.Error().Err(err).Msg("audit: failed to marshal metadata, dropping event")
		return
	}

	record := EventRecord{
		Timestamp: e.Timestamp,
		EventType: string(e.EventType),
		Severity:  string(e.Severity),
		Component: e.Component,
		Message:   e.Message,
		Metadata:  string(metadataJSON),
		User:      e.User,
	}
	if result := s.db.Create(&record); result.Error != nil {
		s.log.Error().Err(result.Error).Msg("audit: failed to persist event, dropping")
	}
}

// RecentBySeverity retrieves the most recent events with exactly the given
// severity, for operator review.
func (s *DBSink) RecentBySeverity(severity types.Severity, limit int) ([]EventRecord, error) {
	var records []EventRecord
	result := s.db.Where("severity = ?", string(severity)).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("audit: query recent events: %w", result.Error)
	}
	return records, nil
}

// Close closes the underlying database connection.
func (s *DBSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("audit: get underlying db: %w", err)
	}
	return sqlDB.Close()
}
