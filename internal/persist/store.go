package persist

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/df-mc/goleveldb/leveldb"
	"go.uber.org/zap"

	"voxelforge/internal/world"
)

// Store persists chunks in a leveldb database, one record per chunk keyed by
// packed coordinates. Implements world.Persistence.
type Store struct {
	db  *leveldb.DB
	log *zap.Logger
}

// Open opens (or creates) the chunk database under dir.
func Open(dir string, log *zap.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(filepath.Join(dir, "chunks"), nil)
	if err != nil {
		return nil, fmt.Errorf("open chunk db at %s: %w", dir, err)
	}
	return &Store{db: db, log: log}, nil
}

// Save writes the chunk's current blocks and flags.
func (s *Store) Save(c *world.Chunk) error {
	if err := s.db.Put(chunkKey(c.Pos.X, c.Pos.Z), encodeChunk(c), nil); err != nil {
		return fmt.Errorf("save chunk (%d,%d): %w", c.Pos.X, c.Pos.Z, err)
	}
	return nil
}

// Load reads the chunk at (x, z); (nil, nil) when none is stored. A corrupt
// record is reported as an error so the caller can regenerate.
func (s *Store) Load(x, z int) (*world.Chunk, error) {
	buf, err := s.db.Get(chunkKey(x, z), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk (%d,%d): %w", x, z, err)
	}
	c, err := decodeChunk(world.ChunkPos{X: x, Z: z}, buf)
	if err != nil {
		return nil, fmt.Errorf("decode chunk (%d,%d): %w", x, z, err)
	}
	return c, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
