package display

import (
	"fmt"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

const (
	textMargin  = 5 // left/right margin in pixels
	lineSpacing = 2 // gap between wrapped lines
)

// Layout is a wrapped text block at one font size.
type Layout struct {
	Size        int
	Lines       []string
	LineHeight  int
	Ascent      int
	TotalHeight int
	face        font.Face
}

// Fits reports whether the layout fits a surface of the given height.
func (l Layout) Fits(height int) bool {
	return l.TotalHeight <= height
}

// FitText searches sizes from maxSize down to minSize and returns the layout
// at the largest size whose wrapped height fits the surface. When no size
// fits the minSize layout is returned.
func FitText(f *opentype.Font, text string, width, height, minSize, maxSize int) (Layout, error) {
	if minSize <= 0 || minSize > maxSize {
		return Layout{}, fmt.Errorf("invalid font size range %d..%d", minSize, maxSize)
	}

	var last Layout
	for size := maxSize; size >= minSize; size-- {
		l, err := layoutAt(f, text, width, size)
		if err != nil {
			return Layout{}, err
		}
		if l.Fits(height) {
			if last.face != nil {
				last.face.Close()
			}
			return l, nil
		}
		if last.face != nil {
			last.face.Close()
		}
		last = l
	}
	return last, nil
}

func layoutAt(f *opentype.Font, text string, width, size int) (Layout, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return Layout{}, fmt.Errorf("failed to create %dpt face: %w", size, err)
	}

	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	lineHeight := ascent + m.Descent.Ceil()

	lines := wrap(face, text, width-2*textMargin)
	total := len(lines)*lineHeight + (len(lines)-1)*lineSpacing
	if len(lines) == 0 {
		total = 0
	}

	return Layout{
		Size:        size,
		Lines:       lines,
		LineHeight:  lineHeight,
		Ascent:      ascent,
		TotalHeight: total,
		face:        face,
	}, nil
}

// wrap greedily packs words into lines no wider than maxWidth pixels.
// A single word wider than maxWidth gets a line of its own.
func wrap(face font.Face, text string, maxWidth int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if font.MeasureString(face, candidate).Ceil() <= maxWidth {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = w
		}
		lines = append(lines, line)
	}
	return lines
}
