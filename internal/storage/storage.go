package storage

import (
	"context"
	"time"
)

// MetricRecord сохраняет снимок состояния модуля.
type MetricRecord struct {
	Module  string
	Payload []byte
	TS      time.Time
}

// AuditEvent фиксирует действия пользователей/транспорта.
type AuditEvent struct {
	Subject   string
	Action    string
	Source    string
	Status    string
	RequestID string
	Payload   []byte
	TS        time.Time
}

// AuditQuery задает фильтры выборки аудита.
type AuditQuery struct {
	From    time.Time
	To      time.Time
	Subject string
	Source  string
	Limit   int
}

// AuditSink записывает аудиторные события.
type AuditSink interface {
	Write(ctx context.Context, ev AuditEvent) error
}

// Store описывает операции хранилища.
type Store interface {
	AuditSink
	SaveMetric(ctx context.Context, rec MetricRecord) error
	SaveAudit(ctx context.Context, ev AuditEvent) error
	LatestMetric(ctx context.Context, module string) (MetricRecord, error)
	QueryAudit(ctx context.Context, q AuditQuery) ([]AuditEvent, error)
	// PruneBefore удаляет метрики и аудит старше before и возвращает число строк.
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
