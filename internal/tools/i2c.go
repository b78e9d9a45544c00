package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldmind/core/internal/hardware"
)

const (
	i2cScanMinFreqHz = 10000
	i2cScanMaxFreqHz = 1000000
	i2cScanDefaultHz = 100000
)

type i2cScanInput struct {
	SDAPin      int  `json:"sda_pin"`
	SCLPin      int  `json:"scl_pin"`
	FrequencyHz *int `json:"frequency_hz,omitempty"`
}

// I2CScanTool implements the i2c_scan built-in. The underlying driver
// is responsible for tearing its handle down on every exit path;
// hardware.I2CDriver implementations must do that internally since
// Handle itself has no handle to release.
type I2CScanTool struct {
	Driver hardware.I2CDriver
	Pins   hardware.PinRange
}

func (t *I2CScanTool) Name() string { return "i2c_scan" }
func (t *I2CScanTool) Description() string {
	return "Scan an I2C bus for responding device addresses."
}

func (t *I2CScanTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"sda_pin": {"type": "integer"},
			"scl_pin": {"type": "integer"},
			"frequency_hz": {"type": "integer", "description": "10000-1000000, default 100000"}
		},
		"required": ["sda_pin", "scl_pin"]
	}`)
}

func (t *I2CScanTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in i2cScanInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	freq := i2cScanDefaultHz
	if in.FrequencyHz != nil {
		freq = *in.FrequencyHz
	}

	if in.SDAPin == in.SCLPin {
		return "", fmt.Errorf("SDA and SCL must be different pins")
	}
	if !t.Pins.Allowed(in.SDAPin) {
		return "", fmt.Errorf("SDA pin %d not allowed (%s)", in.SDAPin, t.Pins.Describe())
	}
	if !t.Pins.Allowed(in.SCLPin) {
		return "", fmt.Errorf("SCL pin %d not allowed (%s)", in.SCLPin, t.Pins.Describe())
	}
	if freq < i2cScanMinFreqHz || freq > i2cScanMaxFreqHz {
		return "", fmt.Errorf("frequency_hz must be %d-%d", i2cScanMinFreqHz, i2cScanMaxFreqHz)
	}

	found, err := t.Driver.Scan(ctx, in.SDAPin, in.SCLPin, freq)
	if err != nil {
		return "", fmt.Errorf("scan failed: %w", err)
	}

	if len(found) == 0 {
		return fmt.Sprintf("No I2C devices found on SDA=%d SCL=%d @ %d Hz", in.SDAPin, in.SCLPin, freq), nil
	}

	addrs := make([]string, len(found))
	for i, a := range found {
		addrs[i] = fmt.Sprintf("0x%02X", a)
	}
	return fmt.Sprintf("Found %d I2C device(s) on SDA=%d SCL=%d @ %d Hz: %s",
		len(found), in.SDAPin, in.SCLPin, freq, strings.Join(addrs, ", ")), nil
}
