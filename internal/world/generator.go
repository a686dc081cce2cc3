package world

import (
	"math"
)

// TerrainGenerator is the external terrain collaborator. GenerateTerrain runs
// synchronously when a chunk is first created; PopulateFeatures runs later on
// the worker pool for chunks inside the visible set.
type TerrainGenerator interface {
	HeightAt(worldX, worldZ int) int
	BiomeAt(worldX, worldZ int) Biome
	GenerateTerrain(c *Chunk)
	PopulateFeatures(c *Chunk)
}

// Generator produces octave-noise terrain.
type Generator struct {
	seed        int64
	scale       float64
	baseHeight  int
	amp         float64
	octaves     int
	persistence float64
	lacunarity  float64
}

// NewGenerator creates a generator with default terrain settings.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		seed:        seed,
		scale:       1.0 / 64.0,
		baseHeight:  32,
		amp:         24,
		octaves:     4,
		persistence: 0.5,
		lacunarity:  2.0,
	}
}

// HeightAt computes the surface height (block Y) at world X,Z.
func (g *Generator) HeightAt(worldX, worldZ int) int {
	x := float64(worldX) * g.scale
	z := float64(worldZ) * g.scale
	n := octaveNoise2D(x, z, g.seed, g.octaves, g.persistence, g.lacunarity)
	height := float64(g.baseHeight) + n*g.amp
	if height < 1 {
		height = 1
	}
	if height > WorldHeight-16 {
		height = WorldHeight - 16
	}
	return int(math.Floor(height))
}

// BiomeAt classifies a column from a second, coarser noise channel.
func (g *Generator) BiomeAt(worldX, worldZ int) Biome {
	n := valueNoise2D(float64(worldX)/192.0, float64(worldZ)/192.0, g.seed+7919)
	switch {
	case n < 0.30:
		return BiomeDesert
	case n > 0.62:
		return BiomeForest
	default:
		return BiomePlains
	}
}

// GenerateTerrain fills the chunk with bare terrain: bedrock floor, stone
// body, biome-dependent surface. No features, no dirty flag.
func (g *Generator) GenerateTerrain(c *Chunk) {
	baseX := c.Pos.X * ChunkSize
	baseZ := c.Pos.Z * ChunkSize
	for lx := 0; lx < ChunkSize; lx++ {
		for lz := 0; lz < ChunkSize; lz++ {
			worldX := baseX + lx
			worldZ := baseZ + lz
			height := g.HeightAt(worldX, worldZ)
			biome := g.BiomeAt(worldX, worldZ)

			c.setBlockGenerated(lx, 0, lz, BlockTypeBedrock)
			for ly := 1; ly < height-3; ly++ {
				c.setBlockGenerated(lx, ly, lz, BlockTypeStone)
			}
			for ly := max(height-3, 1); ly < height; ly++ {
				if biome == BiomeDesert {
					c.setBlockGenerated(lx, ly, lz, BlockTypeSand)
				} else {
					c.setBlockGenerated(lx, ly, lz, BlockTypeDirt)
				}
			}
			if biome == BiomeDesert {
				c.setBlockGenerated(lx, height, lz, BlockTypeSand)
			} else {
				c.setBlockGenerated(lx, height, lz, BlockTypeGrass)
			}
		}
	}
}

// PopulateFeatures runs the feature pass: ore veins in the stone body and
// trees on forest grass. Deterministic per chunk for a given seed.
func (g *Generator) PopulateFeatures(c *Chunk) {
	baseX := c.Pos.X * ChunkSize
	baseZ := c.Pos.Z * ChunkSize
	rng := hash2(int64(c.Pos.X), int64(c.Pos.Z), g.seed^0x5DEECE66D)

	next := func(n uint64) uint64 {
		rng = rng*6364136223846793005 + 1442695040888963407
		return (rng >> 33) % n
	}

	// Ore veins: a few short runs below the surface.
	veins := 2 + int(next(4))
	for v := 0; v < veins; v++ {
		lx := int(next(ChunkSize))
		lz := int(next(ChunkSize))
		ly := 4 + int(next(40))
		ore := BlockTypeCoalOre
		if ly < 20 && next(2) == 0 {
			ore = BlockTypeIronOre
		}
		veinLen := 3 + int(next(4))
		for i := 0; i < veinLen; i++ {
			x, y, z := lx+i%2, ly+i/2, lz+(i+1)%2
			if c.Block(x, y, z) == BlockTypeStone {
				c.setBlockGenerated(x, y, z, ore)
			}
		}
	}

	// Trees on grass columns in forests.
	for lx := 2; lx < ChunkSize-2; lx++ {
		for lz := 2; lz < ChunkSize-2; lz++ {
			worldX := baseX + lx
			worldZ := baseZ + lz
			if g.BiomeAt(worldX, worldZ) != BiomeForest {
				continue
			}
			if hash2(int64(worldX), int64(worldZ), g.seed+104729)%53 != 0 {
				continue
			}
			h := g.HeightAt(worldX, worldZ)
			if c.Block(lx, h, lz) != BlockTypeGrass {
				continue
			}
			trunk := 4 + int(hash2(int64(worldX), int64(worldZ), g.seed+13)%3)
			for ly := h + 1; ly <= h+trunk; ly++ {
				c.setBlockGenerated(lx, ly, lz, BlockTypeWood)
			}
			for dx := -2; dx <= 2; dx++ {
				for dz := -2; dz <= 2; dz++ {
					for dy := 0; dy <= 2; dy++ {
						if dx == 0 && dz == 0 && dy < 2 {
							continue
						}
						if dx*dx+dz*dz+dy*dy > 5 {
							continue
						}
						c.setBlockGenerated(lx+dx, h+trunk+dy, lz+dz, BlockTypeLeaves)
					}
				}
			}
		}
	}
}

// FlatGenerator produces a uniform flat world; used as a deterministic
// collaborator in tests.
type FlatGenerator struct {
	height int
}

// NewFlatGenerator creates a flat generator with the given surface height.
func NewFlatGenerator(height int) *FlatGenerator {
	if height < 1 {
		height = 1
	}
	if height >= WorldHeight {
		height = WorldHeight - 1
	}
	return &FlatGenerator{height: height}
}

func (g *FlatGenerator) HeightAt(worldX, worldZ int) int { return g.height }

func (g *FlatGenerator) BiomeAt(worldX, worldZ int) Biome { return BiomePlains }

func (g *FlatGenerator) GenerateTerrain(c *Chunk) {
	for lx := 0; lx < ChunkSize; lx++ {
		for lz := 0; lz < ChunkSize; lz++ {
			c.setBlockGenerated(lx, 0, lz, BlockTypeBedrock)
			for ly := 1; ly < g.height; ly++ {
				c.setBlockGenerated(lx, ly, lz, BlockTypeDirt)
			}
			c.setBlockGenerated(lx, g.height, lz, BlockTypeGrass)
		}
	}
}

func (g *FlatGenerator) PopulateFeatures(c *Chunk) {}
