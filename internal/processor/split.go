package processor

import "unicode"

// splitLetters divides a detected text run into one unit per character.
// The run's width is shared out by weight: full-width glyphs take two
// units, everything else one. Whitespace consumes its share of the width
// but produces no unit. Every letter inherits the run's confidence.
func splitLetters(run TextUnit) []TextUnit {
	runes := []rune(run.Text)
	if len(runes) == 0 || run.Box.Width <= 0 {
		return nil
	}
	if len(runes) == 1 {
		return []TextUnit{run}
	}

	total := 0
	for _, r := range runes {
		total += glyphWeight(r)
	}
	unit := float64(run.Box.Width) / float64(total)

	out := make([]TextUnit, 0, len(runes))
	offset := 0
	for _, r := range runes {
		w := glyphWeight(r)
		if !unicode.IsSpace(r) {
			x0 := int(float64(offset) * unit)
			x1 := int(float64(offset+w) * unit)
			out = append(out, TextUnit{
				Text: string(r),
				Box: BoundingBox{
					Left:   run.Box.Left + x0,
					Top:    run.Box.Top,
					Width:  max(x1-x0, 1),
					Height: run.Box.Height,
				},
				Confidence:  run.Confidence,
				Granularity: GranularityLetter,
			})
		}
		offset += w
	}
	return out
}

func glyphWeight(r rune) int {
	if isFullWidth(r) {
		return 2
	}
	return 1
}

func isFullWidth(r rune) bool {
	return (r >= '\u4e00' && r <= '\u9fff') || // CJK unified ideographs
		(r >= '\u3000' && r <= '\u303f') || // CJK punctuation
		(r >= '\u3040' && r <= '\u30ff') || // kana
		(r >= '\uff00' && r <= '\uffef') // full-width forms
}
