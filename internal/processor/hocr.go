package processor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// hOCR classes emitted by tesseract for words and, with hocr_char_boxes
// enabled, for single characters.
const (
	hocrWordClass = "ocrx_word"
	hocrCharClass = "ocrx_cinfo"
)

var (
	// words carry "bbox", character spans carry "x_bboxes"
	hocrBoxRe  = regexp.MustCompile(`(?:^|;)\s*(?:bbox|x_bboxes) (-?[0-9]+) (-?[0-9]+) (-?[0-9]+) (-?[0-9]+)`)
	hocrConfRe = regexp.MustCompile(`x_w?conf (-?[0-9.]+)`)
)

type hocrSpan struct {
	class string
	title string
	text  strings.Builder
}

// parseHOCR collects the word or character spans of a tesseract hOCR page,
// in document order. Spans without a bbox are skipped.
func parseHOCR(data []byte, g Granularity) ([]TextUnit, error) {
	want := hocrWordClass
	if g == GranularityLetter {
		want = hocrCharClass
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		stack []*hocrSpan
		units []TextUnit
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse hOCR: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			span := &hocrSpan{}
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "class":
					span.class = a.Value
				case "title":
					span.title = a.Value
				}
			}
			stack = append(stack, span)
		case xml.CharData:
			for _, s := range stack {
				if s.class == want {
					s.text.Write(t)
				}
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			span := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if span.class != want {
				continue
			}
			box, ok := hocrBox(span.title)
			if !ok {
				continue
			}
			units = append(units, TextUnit{
				Text:        strings.TrimSpace(span.text.String()),
				Box:         box,
				Confidence:  hocrConf(span.title) / 100,
				Granularity: g,
			})
		}
	}

	return units, nil
}

// hocrBox reads "bbox x0 y0 x1 y1" (corners) from a title attribute.
func hocrBox(title string) (BoundingBox, bool) {
	m := hocrBoxRe.FindStringSubmatch(title)
	if m == nil {
		return BoundingBox{}, false
	}
	var c [4]int
	for i := range c {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return BoundingBox{}, false
		}
		c[i] = n
	}
	return BoundingBox{Left: c[0], Top: c[1], Width: c[2] - c[0], Height: c[3] - c[1]}, true
}

// hocrConf returns x_wconf / x_conf on tesseract's 0-100 scale, 0 if absent.
func hocrConf(title string) float64 {
	m := hocrConfRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return f
}
