package persist

import (
	"testing"

	"go.uber.org/zap"

	"voxelforge/internal/world"
)

var _ world.Persistence = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	c := world.NewChunk(world.ChunkPos{X: 3, Z: -7})
	c.TryBeginPopulate()
	c.FinishPopulate(true)
	c.SetBlock(0, 0, 0, world.BlockTypeBedrock)
	c.SetBlock(5, 40, 9, world.BlockTypeIronOre)
	c.SetBlock(15, 127, 15, world.BlockTypeLeaves)

	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(3, -7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for a stored chunk")
	}
	if loaded.Pos != (world.ChunkPos{X: 3, Z: -7}) {
		t.Fatalf("loaded position = %v", loaded.Pos)
	}
	if !loaded.FeaturesPopulated() {
		t.Fatal("populated flag lost in round trip")
	}
	if loaded.Dirty() {
		t.Fatal("loaded chunk must start clean")
	}
	checks := [][4]int{{0, 0, 0, 0}, {5, 40, 9, 0}, {15, 127, 15, 0}, {8, 60, 8, 0}}
	wants := []world.BlockType{world.BlockTypeBedrock, world.BlockTypeIronOre, world.BlockTypeLeaves, world.BlockTypeAir}
	for i, pos := range checks {
		if got := loaded.Block(pos[0], pos[1], pos[2]); got != wants[i] {
			t.Errorf("block (%d,%d,%d) = %v, want %v", pos[0], pos[1], pos[2], got, wants[i])
		}
	}
}

func TestLoadMissingChunk(t *testing.T) {
	s := openTestStore(t)
	c, err := s.Load(10, 10)
	if err != nil {
		t.Fatalf("Load of missing chunk: %v", err)
	}
	if c != nil {
		t.Fatal("missing chunk must load as nil")
	}
}

func TestLoadRejectsCorruptRecord(t *testing.T) {
	s := openTestStore(t)

	c := world.NewChunk(world.ChunkPos{X: 1, Z: 2})
	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Flip one block byte so the checksum no longer matches.
	key := chunkKey(1, 2)
	buf, err := s.db.Get(key, nil)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	buf[headerLen+100] ^= 0xFF
	if err := s.db.Put(key, buf, nil); err != nil {
		t.Fatalf("raw put: %v", err)
	}

	if _, err := s.Load(1, 2); err == nil {
		t.Fatal("corrupt record must fail to load")
	}
}

func TestLoadRejectsTruncatedRecord(t *testing.T) {
	s := openTestStore(t)
	if err := s.db.Put(chunkKey(4, 4), []byte{1, 2, 3}, nil); err != nil {
		t.Fatalf("raw put: %v", err)
	}
	if _, err := s.Load(4, 4); err == nil {
		t.Fatal("truncated record must fail to load")
	}
}

func TestChunksSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := world.NewChunk(world.ChunkPos{X: 0, Z: 0})
	c.SetBlock(1, 1, 1, world.BlockTypeStone)
	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	loaded, err := s2.Load(0, 0)
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if loaded == nil || loaded.Block(1, 1, 1) != world.BlockTypeStone {
		t.Fatal("chunk lost across reopen")
	}
}

func TestChunkKeysDistinguishNegativeCoords(t *testing.T) {
	s := openTestStore(t)

	a := world.NewChunk(world.ChunkPos{X: -1, Z: 1})
	a.SetBlock(0, 1, 0, world.BlockTypeStone)
	b := world.NewChunk(world.ChunkPos{X: 1, Z: -1})
	b.SetBlock(0, 1, 0, world.BlockTypeDirt)
	if err := s.Save(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	la, err := s.Load(-1, 1)
	if err != nil || la == nil {
		t.Fatalf("Load(-1,1): %v", err)
	}
	lb, err := s.Load(1, -1)
	if err != nil || lb == nil {
		t.Fatalf("Load(1,-1): %v", err)
	}
	if la.Block(0, 1, 0) != world.BlockTypeStone || lb.Block(0, 1, 0) != world.BlockTypeDirt {
		t.Fatal("negative-coordinate keys collided")
	}
}
