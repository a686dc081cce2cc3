package persist

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"voxelforge/internal/world"
)

// Chunk blob layout (all little-endian unless noted):
//
//	[0]    version
//	[1]    flags (bit 0: features populated)
//	[2:4]  chunk size (uint16)
//	[4:6]  world height (uint16)
//	[6:..] block types, uint16 each, ChunkVolume entries
//	[..+8] xxhash64 of everything before it
const (
	codecVersion = 1
	headerLen    = 6
	checksumLen  = 8
)

const flagPopulated = 1 << 0

// chunkKey packs chunk coordinates into an 8-byte big-endian DB key so keys
// sort by coordinate.
func chunkKey(x, z int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(world.PackPos(x, z)))
	return key
}

// encodeChunk serializes a chunk's blocks and flags with a trailing checksum.
func encodeChunk(c *world.Chunk) []byte {
	blocks := c.Snapshot()
	buf := make([]byte, headerLen+len(blocks)*2+checksumLen)
	buf[0] = codecVersion
	if c.FeaturesPopulated() {
		buf[1] |= flagPopulated
	}
	binary.LittleEndian.PutUint16(buf[2:4], world.ChunkSize)
	binary.LittleEndian.PutUint16(buf[4:6], world.WorldHeight)
	for i, b := range blocks {
		binary.LittleEndian.PutUint16(buf[headerLen+i*2:], uint16(b))
	}
	payloadEnd := len(buf) - checksumLen
	binary.LittleEndian.PutUint64(buf[payloadEnd:], xxhash.Sum64(buf[:payloadEnd]))
	return buf
}

// decodeChunk validates and deserializes a chunk blob.
func decodeChunk(pos world.ChunkPos, buf []byte) (*world.Chunk, error) {
	want := headerLen + world.ChunkVolume*2 + checksumLen
	if len(buf) != want {
		return nil, fmt.Errorf("chunk blob is %d bytes, want %d", len(buf), want)
	}
	payloadEnd := len(buf) - checksumLen
	stored := binary.LittleEndian.Uint64(buf[payloadEnd:])
	if sum := xxhash.Sum64(buf[:payloadEnd]); sum != stored {
		return nil, fmt.Errorf("chunk checksum mismatch: stored %x, computed %x", stored, sum)
	}
	if buf[0] != codecVersion {
		return nil, fmt.Errorf("unsupported chunk version %d", buf[0])
	}
	if cs := binary.LittleEndian.Uint16(buf[2:4]); cs != world.ChunkSize {
		return nil, fmt.Errorf("chunk size %d does not match build (%d)", cs, world.ChunkSize)
	}
	if wh := binary.LittleEndian.Uint16(buf[4:6]); wh != world.WorldHeight {
		return nil, fmt.Errorf("world height %d does not match build (%d)", wh, world.WorldHeight)
	}

	blocks := make([]world.BlockType, world.ChunkVolume)
	for i := range blocks {
		blocks[i] = world.BlockType(binary.LittleEndian.Uint16(buf[headerLen+i*2:]))
	}
	populated := buf[1]&flagPopulated != 0
	return world.NewChunkFromData(pos, blocks, populated), nil
}
