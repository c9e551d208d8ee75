package app

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/dmc-robo/teleop_bridge/internal/motor"
)

// StatusDisplay drives the bridge's local ssd1306 OLED: calibration mode on
// the top line, last emitted command below.
type StatusDisplay struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// OpenStatusDisplay initializes periph, opens the default I2C bus, and brings
// up the display at addr.
func OpenStatusDisplay(addr uint16) (*StatusDisplay, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init display at 0x%02X: %w", addr, err)
	}
	return &StatusDisplay{bus: bus, dev: dev}, nil
}

// Update redraws the status screen.
func (d *StatusDisplay) Update(mode string, last motor.Command, have bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(mode))

	if !have {
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("no cmd yet"))
	} else {
		drawer.Dot = fixed.P(0, 33)
		drawer.DrawBytes([]byte(fmt.Sprintf("L %+.3f", last.VL)))
		drawer.Dot = fixed.P(0, 46)
		drawer.DrawBytes([]byte(fmt.Sprintf("R %+.3f", last.VR)))
		drawer.Dot = fixed.P(0, 59)
		drawer.DrawBytes([]byte(fmt.Sprintf("seq %d", last.Seq)))
	}

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// Close releases the I2C bus.
func (d *StatusDisplay) Close() error {
	return d.bus.Close()
}
