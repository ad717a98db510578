// Package storage implements the memory repos on PostgreSQL through GORM.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/easeaico/bookmind/internal/memory"
)

// Store holds the DB pool and repositories.
type Store struct {
	db       *gorm.DB
	Entries  memory.EntryRepo
	Threads  memory.ThreadRepo
	Nodes    memory.NodeRepo
	Edges    memory.EdgeRepo
	Profiles memory.ProfileRepo
	Insights memory.InsightRepo
	Refs     memory.RefResolver
}

// NewStore initializes the PostgreSQL pool, migrates the memory tables, and
// wires the repositories. The notes/quotes tables belong to the host app and
// are never migrated here.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&conversationEntryModel{},
		&memoryThreadModel{},
		&knowledgeNodeModel{},
		&knowledgeEdgeModel{},
		&readingProfileModel{},
		&bookInsightModel{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate memory tables: %w", err)
	}

	return &Store{
		db:       db,
		Entries:  NewEntryRepo(db),
		Threads:  NewThreadRepo(db),
		Nodes:    NewNodeRepo(db),
		Edges:    NewEdgeRepo(db),
		Profiles: NewProfileRepo(db),
		Insights: NewInsightRepo(db),
		Refs:     NewRefResolver(db),
	}, nil
}

// Deps packs the store's repositories for memory.NewService.
func (s *Store) Deps() memory.Deps {
	return memory.Deps{
		Entries:  s.Entries,
		Threads:  s.Threads,
		Nodes:    s.Nodes,
		Edges:    s.Edges,
		Profiles: s.Profiles,
		Insights: s.Insights,
		Refs:     s.Refs,
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
