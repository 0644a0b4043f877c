package emotion

// DefaultBrightness applies to every label without an entry in the table.
const DefaultBrightness = 50

var brightnessTable = map[Label]int{
	Happy:   90,
	Sad:     20,
	Neutral: 50,
}

// Brightness returns the light level, in percent, for l.
func Brightness(l Label) int {
	if pct, ok := brightnessTable[l]; ok {
		return pct
	}
	return DefaultBrightness
}
