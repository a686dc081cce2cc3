package meshing

import (
	"fmt"

	"voxelforge/internal/world"
)

// Packed vertex format, two uint32 words per vertex:
//   word 1: X(5) | Y(9) | Z(5) | normal(3) | brightness(8)
//   word 2: blockType(16)
const wordsPerVertex = 2

// Face normals.
const (
	normalSouth = iota // +Z
	normalNorth        // -Z
	normalEast         // +X
	normalWest         // -X
	normalTop          // +Y
	normalBottom       // -Y
)

// Mesh is a transient vertex buffer owned by the worker that built it until
// it is handed to the upload stage.
type Mesh struct {
	Verts []uint32
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Verts) / wordsPerVertex
}

// NeighborFunc resolves blocks outside the chunk being meshed, by world
// coordinates. Unloaded neighbors read as air.
type NeighborFunc func(wx, wy, wz int) world.BlockType

func packVertex(x, y, z, normal int, brightness uint8) uint32 {
	return uint32(x) | uint32(y)<<5 | uint32(z)<<14 | uint32(normal)<<19 | uint32(brightness)<<22
}

func brightnessFor(normal int) uint8 {
	switch normal {
	case normalTop:
		return 255
	case normalBottom:
		return 128
	}
	return 204
}

// BuildChunkMesh builds face-culled geometry for a chunk snapshot. Faces
// against opaque blocks are skipped; cross-chunk faces consult neighbor,
// which is why the border ring must exist before visible chunks mesh.
func BuildChunkMesh(pos world.ChunkPos, blocks []world.BlockType, neighbor NeighborFunc) (*Mesh, error) {
	if len(blocks) != world.ChunkVolume {
		return nil, fmt.Errorf("chunk (%d,%d): snapshot has %d blocks, want %d",
			pos.X, pos.Z, len(blocks), world.ChunkVolume)
	}

	baseX := pos.X * world.ChunkSize
	baseZ := pos.Z * world.ChunkSize

	at := func(x, y, z int) world.BlockType {
		if y < 0 {
			return world.BlockTypeBedrock
		}
		if y >= world.WorldHeight {
			return world.BlockTypeAir
		}
		if x < 0 || x >= world.ChunkSize || z < 0 || z >= world.ChunkSize {
			return neighbor(baseX+x, y, baseZ+z)
		}
		return blocks[(x*world.ChunkSize+z)*world.WorldHeight+y]
	}

	verts := make([]uint32, 0, 4096)
	emit := func(b world.BlockType, normal int, quad [4][3]int) {
		bright := brightnessFor(normal)
		// Two CCW triangles: 0-1-2, 0-2-3.
		for _, i := range [6]int{0, 1, 2, 0, 2, 3} {
			v := quad[i]
			verts = append(verts, packVertex(v[0], v[1], v[2], normal, bright), uint32(b))
		}
	}

	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			for y := 0; y < world.WorldHeight; y++ {
				b := blocks[(x*world.ChunkSize+z)*world.WorldHeight+y]
				if b == world.BlockTypeAir {
					continue
				}
				x1, y1, z1 := x+1, y+1, z+1

				if !at(x, y, z+1).IsOpaque() {
					emit(b, normalSouth, [4][3]int{{x, y, z1}, {x1, y, z1}, {x1, y1, z1}, {x, y1, z1}})
				}
				if !at(x, y, z-1).IsOpaque() {
					emit(b, normalNorth, [4][3]int{{x1, y, z}, {x, y, z}, {x, y1, z}, {x1, y1, z}})
				}
				if !at(x+1, y, z).IsOpaque() {
					emit(b, normalEast, [4][3]int{{x1, y, z1}, {x1, y, z}, {x1, y1, z}, {x1, y1, z1}})
				}
				if !at(x-1, y, z).IsOpaque() {
					emit(b, normalWest, [4][3]int{{x, y, z}, {x, y, z1}, {x, y1, z1}, {x, y1, z}})
				}
				if !at(x, y+1, z).IsOpaque() {
					emit(b, normalTop, [4][3]int{{x, y1, z1}, {x1, y1, z1}, {x1, y1, z}, {x, y1, z}})
				}
				if !at(x, y-1, z).IsOpaque() {
					emit(b, normalBottom, [4][3]int{{x, y, z}, {x1, y, z}, {x1, y, z1}, {x, y, z1}})
				}
			}
		}
	}

	return &Mesh{Verts: verts}, nil
}
