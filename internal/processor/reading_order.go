package processor

import (
	"sort"
	"strings"
)

// NormalizeOptions controls which recognized units survive normalization
type NormalizeOptions struct {
	MinConfidence float64
	KeepBlank     bool
}

// normalizeUnits clips boxes to the image, drops empty boxes, blank text and
// low-confidence noise, tags the granularity and sorts into reading order.
func normalizeUnits(units []TextUnit, size ImageSize, g Granularity, opts NormalizeOptions) []TextUnit {
	out := make([]TextUnit, 0, len(units))
	for _, u := range units {
		box, ok := u.Box.Clip(size)
		if !ok {
			continue
		}
		if !opts.KeepBlank && strings.TrimSpace(u.Text) == "" {
			continue
		}
		if u.Confidence < opts.MinConfidence {
			continue
		}
		u.Box = box
		u.Granularity = g
		out = append(out, u)
	}
	sortReadingOrder(out)
	return out
}

// sortReadingOrder orders units top-to-bottom by line band, then
// left-to-right inside a band. Unit heights are capped at 1.5x the median
// unit height before banding, so one tall box (a long descender, a tilted
// region) cannot swallow the lines below it. A band is opened by its topmost
// unit and takes every following unit whose capped vertical centre lies above
// the opener's capped bottom edge. Both sorts are stable, so ties keep engine
// order.
func sortReadingOrder(units []TextUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Box.Top < units[j].Box.Top
	})

	limit := bandHeightLimit(units)
	for start := 0; start < len(units); {
		bandBottom := units[start].Box.Top + min(units[start].Box.Height, limit)
		end := start + 1
		for end < len(units) && cappedCentreY(units[end].Box, limit) < bandBottom {
			end++
		}
		band := units[start:end]
		sort.SliceStable(band, func(i, j int) bool {
			return band[i].Box.Left < band[j].Box.Left
		})
		start = end
	}
}

// bandHeightLimit is 1.5x the median unit height, at least 1.
func bandHeightLimit(units []TextUnit) int {
	if len(units) == 0 {
		return 1
	}
	heights := make([]int, len(units))
	for i, u := range units {
		heights[i] = u.Box.Height
	}
	sort.Ints(heights)
	return max(heights[len(heights)/2]*3/2, 1)
}

func cappedCentreY(b BoundingBox, limit int) int {
	return b.Top + min(b.Height, limit)/2
}
