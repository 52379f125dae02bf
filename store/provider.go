// Package store implements the State Store & Evidence component (spec.md
// §4.7): append-only event logs for runs/attempts/feedback/breaker state, a
// content-addressed artifact store, a small in-memory index rebuilt by
// replaying the logs, and integrity-hashed/schema-versioned backups.
package store

import (
	"context"
	"time"
)

// Provider abstracts the underlying key/value + sorted-index backend,
// grounded on the teacher's orchestration.StorageProvider — "the framework
// doesn't assume specific backends", method names are storage-agnostic so
// the same interface is satisfiable by a local file backend or Redis. In this
// package it holds the persisted approval tokens (approval.go); breaker state
// is kept in events/breaker.jsonl and the latest-run index in memory.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// AddToIndex adds a member with score to a sorted index (score is
	// typically a unix-nano timestamp for time-ordered listing).
	AddToIndex(ctx context.Context, key string, score float64, member string) error
	// ListByScoreDesc returns members from a sorted index, highest score
	// first, bounded by [min,max] and an offset/count page.
	ListByScoreDesc(ctx context.Context, key string, min, max string, offset, count int64) ([]string, error)
	RemoveFromIndex(ctx context.Context, key string, members ...string) error
}
