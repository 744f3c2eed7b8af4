package display

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

type capturePanel struct {
	frames []image.Image
	sleeps int
	err    error
}

func (p *capturePanel) Show(img image.Image) error {
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, img)
	return nil
}

func (p *capturePanel) Sleep() error { p.sleeps++; return nil }
func (p *capturePanel) Close() error { return nil }

func (p *capturePanel) last(t *testing.T) image.Image {
	t.Helper()
	if len(p.frames) == 0 {
		t.Fatal("no frame displayed")
	}
	return p.frames[len(p.frames)-1]
}

func testOptions() Options {
	return Options{
		Width:           296,
		Height:          128,
		MinSize:         8,
		MaxSize:         24,
		ShutdownMessage: "bye",
	}
}

func newTestFrames(t *testing.T, panel Panel, opts Options) *Frames {
	t.Helper()
	f, err := NewFrames(panel, opts)
	if err != nil {
		t.Fatalf("NewFrames() error = %v", err)
	}
	f.sleep = func(time.Duration) {}
	return f
}

func parseGoRegular(t *testing.T) *opentype.Font {
	t.Helper()
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func isBlack(img image.Image, x, y int) bool {
	g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
	return g.Y < 128
}

func TestFitText_ShortTextUsesMaxSize(t *testing.T) {
	l, err := FitText(parseGoRegular(t), "A leaf.", 296, 128, 8, 24)
	if err != nil {
		t.Fatal(err)
	}
	defer l.face.Close()

	if l.Size != 24 {
		t.Errorf("Size = %d, want 24", l.Size)
	}
	if len(l.Lines) != 1 {
		t.Errorf("Lines = %v, want one line", l.Lines)
	}
}

func TestFitText_LongTextShrinksAndFits(t *testing.T) {
	body := strings.Repeat("A thin thread of dust catches the window light and hangs there. ", 4)

	l, err := FitText(parseGoRegular(t), body, 296, 128, 8, 24)
	if err != nil {
		t.Fatal(err)
	}
	defer l.face.Close()

	if l.Size >= 24 {
		t.Errorf("Size = %d, want smaller than 24", l.Size)
	}
	if !l.Fits(128) {
		t.Errorf("TotalHeight = %d, does not fit 128", l.TotalHeight)
	}

	// the next size up must not fit, otherwise the search did not pick the largest
	bigger, err := layoutAt(parseGoRegular(t), body, 296, l.Size+1)
	if err != nil {
		t.Fatal(err)
	}
	defer bigger.face.Close()
	if bigger.Fits(128) {
		t.Errorf("size %d also fits; search should prefer the largest", l.Size+1)
	}
}

func TestFitText_NothingFitsFallsBackToMin(t *testing.T) {
	body := strings.Repeat("overflow ", 400)

	l, err := FitText(parseGoRegular(t), body, 296, 128, 8, 12)
	if err != nil {
		t.Fatal(err)
	}
	defer l.face.Close()

	if l.Size != 8 {
		t.Errorf("Size = %d, want 8", l.Size)
	}
	if l.Fits(128) {
		t.Error("expected overflowing layout")
	}
}

func TestFitText_InvalidRange(t *testing.T) {
	if _, err := FitText(parseGoRegular(t), "x", 100, 100, 20, 10); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestWrap_LinesWithinWidth(t *testing.T) {
	face, err := opentype.NewFace(parseGoRegular(t), &opentype.FaceOptions{Size: 12, DPI: 72})
	if err != nil {
		t.Fatal(err)
	}
	defer face.Close()

	body := "the smallest bead of condensation slides down the rim of a forgotten glass"
	lines := wrap(face, body, 120)
	if len(lines) < 2 {
		t.Fatalf("wrap() = %v, want several lines", lines)
	}
	for _, line := range lines {
		if strings.Contains(line, " ") && font.MeasureString(face, line).Ceil() > 120 {
			t.Errorf("line %q wider than 120px", line)
		}
	}
	if got := strings.Join(lines, " "); got != body {
		t.Errorf("rejoined = %q, want %q", got, body)
	}
}

func TestFrames_ShowSteps(t *testing.T) {
	panel := &capturePanel{}
	f := newTestFrames(t, panel, testOptions())

	f.ShowSteps(3)
	img := panel.last(t)

	cx, cy := 296/2-dotSpacing, 128/2
	for i := 0; i < 3; i++ {
		if !isBlack(img, cx+i*dotSpacing, cy) {
			t.Errorf("dot %d not drawn", i+1)
		}
	}
	if isBlack(img, cx+3*dotSpacing, cy) {
		t.Error("fourth dot drawn")
	}
}

func TestFrames_SolidFrames(t *testing.T) {
	panel := &capturePanel{}
	f := newTestFrames(t, panel, testOptions())

	f.ShowDark()
	if !isBlack(panel.last(t), 10, 10) {
		t.Error("dark frame is not dark")
	}
	f.ShowLight()
	if isBlack(panel.last(t), 10, 10) {
		t.Error("light frame is not light")
	}
}

func TestFrames_ShowTextSleepsPanel(t *testing.T) {
	panel := &capturePanel{}
	f := newTestFrames(t, panel, testOptions())

	f.ShowText("A moth rests on the lampshade.")
	if len(panel.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(panel.frames))
	}
	if panel.sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", panel.sleeps)
	}

	img := panel.last(t)
	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isBlack(img, x, y) {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("text frame has no ink")
	}
}

func TestFrames_RotatesForPanel(t *testing.T) {
	panel := &capturePanel{}
	opts := testOptions()
	opts.Rotate = true
	f := newTestFrames(t, panel, opts)

	f.ShowSteps(1)
	b := panel.last(t).Bounds()
	if b.Dx() != 128 || b.Dy() != 296 {
		t.Errorf("rotated bounds = %v, want 128x296", b)
	}
}

func TestRotate270_MovesTopLeftToTopRight(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	src.SetGray(0, 0, color.Gray{Y: 0})

	dst := rotate270(src)
	if dst.Bounds().Dx() != 2 || dst.Bounds().Dy() != 4 {
		t.Fatalf("bounds = %v, want 2x4", dst.Bounds())
	}
	if dst.GrayAt(1, 0).Y != 0 {
		t.Error("top-left pixel did not move to top-right")
	}
}

func TestFrames_PanelErrorsAreSwallowed(t *testing.T) {
	panel := &capturePanel{err: errors.New("busy pin timeout")}
	f := newTestFrames(t, panel, testOptions())

	f.ShowSteps(2)
	f.ShowDark()
	f.ShowLight()
	f.ShowText("still here")
	f.ShowShutdown()

	if panel.sleeps != 0 {
		t.Error("panel slept after a failed draw")
	}
}

func TestPNGFile_WritesFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	f := newTestFrames(t, NewPNGFile(path), testOptions())

	f.ShowLight()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("frame file not written: %v", err)
	}
}

func TestNewFrames_MissingFont(t *testing.T) {
	opts := testOptions()
	opts.FontPath = filepath.Join(t.TempDir(), "missing.ttf")
	if _, err := NewFrames(Discard{}, opts); err == nil {
		t.Error("expected error for missing font")
	}
}
