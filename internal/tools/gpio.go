package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldmind/core/internal/hardware"
)

type gpioSetInput struct {
	Pin   int `json:"pin"`
	Level int `json:"level"`
}

// GPIOSetTool implements the gpio_set built-in.
type GPIOSetTool struct {
	Driver hardware.GPIODriver
	Pins   hardware.PinRange
}

func (t *GPIOSetTool) Name() string        { return "gpio_set" }
func (t *GPIOSetTool) Description() string { return "Set a GPIO pin to HIGH or LOW." }

func (t *GPIOSetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pin": {"type": "integer", "description": "GPIO pin number"},
			"level": {"type": "integer", "enum": [0, 1], "description": "0=LOW, 1=HIGH"}
		},
		"required": ["pin", "level"]
	}`)
}

func (t *GPIOSetTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in gpioSetInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if !t.Pins.Allowed(in.Pin) {
		return "", fmt.Errorf("pin %d not allowed (%s)", in.Pin, t.Pins.Describe())
	}
	if in.Level != 0 && in.Level != 1 {
		return "", fmt.Errorf("level must be 0 or 1")
	}
	level := hardware.Low
	if in.Level == 1 {
		level = hardware.High
	}
	if err := t.Driver.Set(ctx, in.Pin, level); err != nil {
		return "", fmt.Errorf("driver error: %w", err)
	}
	word := "LOW"
	if level == hardware.High {
		word = "HIGH"
	}
	return fmt.Sprintf("GPIO %d = %s", in.Pin, word), nil
}
