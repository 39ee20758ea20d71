package collab

// collaboratorPalette is the fixed set of presence colors cycled through as
// collaborators join a session.
var collaboratorPalette = [...]string{
	"#F94144",
	"#F3722C",
	"#F8961E",
	"#F9C74F",
	"#90BE6D",
	"#43AA8B",
	"#577590",
	"#9D4EDD",
}

// PaletteSize exposes the number of distinct presence colors.
const PaletteSize = len(collaboratorPalette)

// ColorFor maps a palette index onto a presence color. Indexes wrap modulo
// the palette size, so the ninth collaborator repeats the first color.
func ColorFor(index int) string {
	normalized := ((index % PaletteSize) + PaletteSize) % PaletteSize
	return collaboratorPalette[normalized]
}
