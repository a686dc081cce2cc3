package world

type BlockType uint16

const (
	BlockTypeAir BlockType = iota
	BlockTypeBedrock
	BlockTypeStone
	BlockTypeDirt
	BlockTypeGrass
	BlockTypeSand
	BlockTypeWood
	BlockTypeLeaves
	BlockTypeCoalOre
	BlockTypeIronOre
)

// IsOpaque reports whether the block hides faces of adjacent blocks.
func (b BlockType) IsOpaque() bool {
	return b != BlockTypeAir
}

// Biome classifies a world column for the feature pass.
type Biome uint8

const (
	BiomePlains Biome = iota
	BiomeForest
	BiomeDesert
)
