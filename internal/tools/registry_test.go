package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldmind/core/internal/hardware"
)

func TestGPIOSetValidation(t *testing.T) {
	bus := hardware.NewSimulatedBus(nil)
	tool := &GPIOSetTool{Driver: bus, Pins: hardware.PinRange{Min: 0, Max: 10}}

	_, err := tool.Handle(context.Background(), json.RawMessage(`{"pin":20,"level":1}`))
	require.Error(t, err)

	out, err := tool.Handle(context.Background(), json.RawMessage(`{"pin":5,"level":1}`))
	require.NoError(t, err)
	require.Equal(t, "GPIO 5 = HIGH", out)
	require.Equal(t, hardware.High, bus.Level(5))
}

func TestI2CScanRequiresDistinctPins(t *testing.T) {
	bus := hardware.NewSimulatedBus([]byte{0x42})
	tool := &I2CScanTool{Driver: bus, Pins: hardware.PinRange{Min: 0, Max: 10}}
	_, err := tool.Handle(context.Background(), json.RawMessage(`{"sda_pin":4,"scl_pin":4}`))
	require.Error(t, err)
}

func TestI2CScanFindsSimulatedDevice(t *testing.T) {
	bus := hardware.NewSimulatedBus([]byte{0x42})
	tool := &I2CScanTool{Driver: bus, Pins: hardware.PinRange{Min: 0, Max: 10}}
	out, err := tool.Handle(context.Background(), json.RawMessage(`{"sda_pin":4,"scl_pin":5}`))
	require.NoError(t, err)
	require.Contains(t, out, "0x42")
}

func TestRegistryBuiltinImmutable(t *testing.T) {
	reg := NewRegistry()
	bus := hardware.NewSimulatedBus(nil)
	reg.RegisterBuiltin(&GPIOSetTool{Driver: bus, Pins: hardware.PinRange{Min: 0, Max: 10}})

	err := reg.RemoveUser("gpio_set")
	require.ErrorIs(t, err, ErrImmutable)
}

func TestRegistryUserToolDuplicate(t *testing.T) {
	reg := NewRegistry()
	h := &UserToolHandler{Tool: UserTool{Name: "greet", Description: "d", Action: "a"}}
	require.NoError(t, reg.RegisterUser(h, false))
	err := reg.RegisterUser(h, false)
	require.ErrorIs(t, err, ErrDuplicateName)
	require.NoError(t, reg.RegisterUser(h, true))
}

func TestTruncateResult(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	out := truncateResult(string(long))
	require.LessOrEqual(t, len(out), ResultBufferBytes)
	require.Contains(t, out, "…")
}
