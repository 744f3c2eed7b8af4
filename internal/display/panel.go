package display

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/waveshare2in13v2"
	"periph.io/x/host/v3"
)

// Waveshare drives a Waveshare e-paper HAT on SPI.
type Waveshare struct {
	port spi.PortCloser
	dev  *waveshare2in13v2.Dev
}

// OpenWaveshare opens the HAT on spiPort ("" = first port). width and height
// are the panel's native portrait dimensions.
func OpenWaveshare(spiPort string, width, height int) (*Waveshare, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi port %q: %w", spiPort, err)
	}

	opts := waveshare2in13v2.EPD2in13v2
	opts.Width = width
	opts.Height = height

	dev, err := waveshare2in13v2.NewHat(port, &opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to open e-paper HAT: %w", err)
	}

	log.Info().Int("width", width).Int("height", height).Msg("E-paper panel ready")
	return &Waveshare{port: port, dev: dev}, nil
}

// Show wakes the controller and draws a full frame.
func (w *Waveshare) Show(img image.Image) error {
	if err := w.dev.Init(); err != nil {
		return fmt.Errorf("failed to init panel: %w", err)
	}
	return w.dev.Draw(w.dev.Bounds(), img, image.Point{})
}

// Sleep puts the controller into deep sleep; the image is retained.
func (w *Waveshare) Sleep() error {
	return w.dev.Sleep()
}

// Close releases the SPI port.
func (w *Waveshare) Close() error {
	return w.port.Close()
}

// PNGFile writes every frame to a PNG file, replacing the previous one.
type PNGFile struct {
	path string
}

// NewPNGFile creates a panel that writes frames to path.
func NewPNGFile(path string) *PNGFile {
	return &PNGFile{path: path}
}

// Show encodes img and atomically replaces the file.
func (p *PNGFile) Show(img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

// Sleep is a no-op
func (p *PNGFile) Sleep() error { return nil }

// Close is a no-op
func (p *PNGFile) Close() error { return nil }

// Discard drops frames; used when no panel is attached.
type Discard struct{}

// Show drops the frame
func (Discard) Show(image.Image) error { return nil }

// Sleep is a no-op
func (Discard) Sleep() error { return nil }

// Close is a no-op
func (Discard) Close() error { return nil }
