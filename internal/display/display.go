// Package display renders status frames for the bi-level annunciator.
package display

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// Annunciator is the status surface driven through a capture cycle.
// Every call draws and flushes a full frame. Failures are logged, never
// returned: display feedback is not part of the capture contract.
type Annunciator interface {
	ShowSteps(n int)
	ShowDark()
	ShowLight()
	ShowText(body string)
	ShowShutdown()
}

// Panel is a physical or virtual surface frames are pushed to.
type Panel interface {
	Show(img image.Image) error
	Sleep() error
	Close() error
}

// Options configure frame composition.
type Options struct {
	Width      int // landscape canvas width
	Height     int // landscape canvas height
	Rotate     bool
	FontPath   string // "" = built-in Go Regular
	MinSize    int
	MaxSize    int
	Settle     time.Duration
	TextSettle time.Duration

	ShutdownMessage string
}

// status indicator geometry
const (
	dotRadius  = 7
	dotSpacing = 25
)

// Frames composes frames and pushes them to a Panel.
type Frames struct {
	panel Panel
	opts  Options
	font  *opentype.Font
	sleep func(time.Duration)
}

// NewFrames creates an Annunciator on panel.
func NewFrames(panel Panel, opts Options) (*Frames, error) {
	data := goregular.TTF
	if opts.FontPath != "" {
		var err error
		data, err = os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return &Frames{
		panel: panel,
		opts:  opts,
		font:  f,
		sleep: time.Sleep,
	}, nil
}

// ShowSteps renders n filled dots, left to right from just left of centre.
func (d *Frames) ShowSteps(n int) {
	img := d.canvas(color.White)
	cx := img.Bounds().Dx()/2 - dotSpacing
	cy := img.Bounds().Dy() / 2
	for i := 0; i < n; i++ {
		fillDisk(img, cx+i*dotSpacing, cy, dotRadius, color.Black)
	}
	d.push("steps", img, d.opts.Settle)
}

// ShowDark renders a solid dark frame.
func (d *Frames) ShowDark() {
	d.push("dark", d.canvas(color.Black), d.opts.Settle)
}

// ShowLight renders a solid light frame.
func (d *Frames) ShowLight() {
	d.push("light", d.canvas(color.White), d.opts.Settle)
}

// ShowShutdown renders the shutdown message.
func (d *Frames) ShowShutdown() {
	img, err := d.textFrame(d.opts.ShutdownMessage)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to compose shutdown frame")
		return
	}
	d.push("shutdown", img, d.opts.Settle)
}

// ShowText renders body at the largest font size that fits, then puts the
// panel to sleep.
func (d *Frames) ShowText(body string) {
	img, err := d.textFrame(body)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to compose text frame")
		return
	}
	if !d.push("text", img, d.opts.TextSettle) {
		return
	}
	if err := d.panel.Sleep(); err != nil {
		log.Warn().Err(err).Msg("Failed to put panel to sleep")
	}
}

func (d *Frames) textFrame(body string) (*image.Gray, error) {
	l, err := FitText(d.font, body, d.opts.Width, d.opts.Height, d.opts.MinSize, d.opts.MaxSize)
	if err != nil {
		return nil, err
	}
	defer l.face.Close()

	img := d.canvas(color.White)
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: l.face,
	}

	y := max((d.opts.Height-l.TotalHeight)/2, 0)
	for _, line := range l.Lines {
		drawer.Dot = fixed.P(textMargin, y+l.Ascent)
		drawer.DrawString(line)
		y += l.LineHeight + lineSpacing
	}

	log.Debug().Int("size", l.Size).Int("lines", len(l.Lines)).Msg("Laid out text frame")
	return img, nil
}

func (d *Frames) canvas(c color.Color) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, d.opts.Width, d.opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func (d *Frames) push(kind string, img *image.Gray, settle time.Duration) bool {
	var frame image.Image = img
	if d.opts.Rotate {
		frame = rotate270(img)
	}
	if err := d.panel.Show(frame); err != nil {
		log.Warn().Err(err).Str("frame", kind).Msg("Failed to display frame")
		return false
	}
	log.Debug().Str("frame", kind).Msg("Displayed frame")
	if settle > 0 {
		d.sleep(settle)
	}
	return true
}

// rotate270 turns a landscape canvas counter-clockwise by 270 degrees
// (a quarter turn clockwise) for a portrait-mounted panel.
func rotate270(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dy(), b.Dx()))
	s2d := f64.Aff3{
		0, -1, float64(b.Dy()),
		1, 0, 0,
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst
}

func fillDisk(img *image.Gray, cx, cy, r int, c color.Color) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}
