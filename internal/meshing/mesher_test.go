package meshing

import (
	"testing"

	"voxelforge/internal/world"
)

func airNeighbor(wx, wy, wz int) world.BlockType { return world.BlockTypeAir }

func emptySnapshot() []world.BlockType {
	return make([]world.BlockType, world.ChunkVolume)
}

func setSnap(blocks []world.BlockType, x, y, z int, b world.BlockType) {
	blocks[(x*world.ChunkSize+z)*world.WorldHeight+y] = b
}

func TestBuildChunkMeshSingleBlock(t *testing.T) {
	blocks := emptySnapshot()
	setSnap(blocks, 5, 50, 5, world.BlockTypeStone)

	mesh, err := BuildChunkMesh(world.ChunkPos{}, blocks, airNeighbor)
	if err != nil {
		t.Fatalf("BuildChunkMesh: %v", err)
	}
	// A lone block exposes all six faces, two triangles each.
	if mesh.VertexCount() != 36 {
		t.Fatalf("vertex count = %d, want 36", mesh.VertexCount())
	}
	if len(mesh.Verts) != 72 {
		t.Fatalf("word count = %d, want 72", len(mesh.Verts))
	}
	// Every second word carries the block type.
	for i := 1; i < len(mesh.Verts); i += 2 {
		if mesh.Verts[i] != uint32(world.BlockTypeStone) {
			t.Fatalf("vertex %d: block word = %d", i/2, mesh.Verts[i])
		}
	}
}

func TestBuildChunkMeshBuriedBlockCulled(t *testing.T) {
	blocks := emptySnapshot()
	// A 3x3x3 cube of dirt: the center block is fully enclosed.
	for x := 4; x <= 6; x++ {
		for z := 4; z <= 6; z++ {
			for y := 49; y <= 51; y++ {
				setSnap(blocks, x, y, z, world.BlockTypeDirt)
			}
		}
	}

	mesh, err := BuildChunkMesh(world.ChunkPos{}, blocks, airNeighbor)
	if err != nil {
		t.Fatalf("BuildChunkMesh: %v", err)
	}
	// 27 blocks, but only the cube's outer surface: 9 faces per side.
	want := 6 * 9 * 6
	if mesh.VertexCount() != want {
		t.Fatalf("vertex count = %d, want %d", mesh.VertexCount(), want)
	}
}

func TestBuildChunkMeshCrossChunkCulling(t *testing.T) {
	blocks := emptySnapshot()
	// A full stone layer at y=0. The bottom face is always culled against
	// implicit bedrock below the world.
	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			setSnap(blocks, x, 0, z, world.BlockTypeStone)
		}
	}

	// With air neighbors the slab exposes its top and its 64 perimeter faces.
	mesh, err := BuildChunkMesh(world.ChunkPos{}, blocks, airNeighbor)
	if err != nil {
		t.Fatalf("BuildChunkMesh: %v", err)
	}
	wantExposed := (256 + 64) * 6
	if mesh.VertexCount() != wantExposed {
		t.Fatalf("air neighbors: vertex count = %d, want %d", mesh.VertexCount(), wantExposed)
	}

	// With stone neighbors at y=0 the perimeter faces are culled.
	stoneLayer := func(wx, wy, wz int) world.BlockType {
		if wy == 0 {
			return world.BlockTypeStone
		}
		return world.BlockTypeAir
	}
	mesh, err = BuildChunkMesh(world.ChunkPos{}, blocks, stoneLayer)
	if err != nil {
		t.Fatalf("BuildChunkMesh: %v", err)
	}
	if mesh.VertexCount() != 256*6 {
		t.Fatalf("stone neighbors: vertex count = %d, want %d", mesh.VertexCount(), 256*6)
	}
}

func TestBuildChunkMeshRejectsBadSnapshot(t *testing.T) {
	if _, err := BuildChunkMesh(world.ChunkPos{}, make([]world.BlockType, 10), airNeighbor); err == nil {
		t.Fatal("expected error for truncated snapshot")
	}
}

func TestMeshVertexCountNil(t *testing.T) {
	var m *Mesh
	if m.VertexCount() != 0 {
		t.Fatal("nil mesh must report zero vertices")
	}
}
