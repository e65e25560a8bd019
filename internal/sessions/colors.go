package sessions

// displayPalette is assigned round-robin by join order so every participant
// renders with a stable, distinct color.
var displayPalette = []string{
	"#E57373",
	"#64B5F6",
	"#81C784",
	"#FFD54F",
	"#BA68C8",
	"#4DB6AC",
	"#F06292",
	"#A1887F",
}

func displayColorFor(joinIndex int) string {
	if joinIndex < 0 {
		joinIndex = 0
	}
	return displayPalette[joinIndex%len(displayPalette)]
}
