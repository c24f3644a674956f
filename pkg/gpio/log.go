package gpio

import (
	"log/slog"
	"sync"
)

// LogOutput is an Output that only logs its transitions. It stands in for
// the LED when running off the appliance.
type LogOutput struct {
	Name string

	mu sync.Mutex
	on bool
}

// Set implements Output
func (o *LogOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if on != o.on {
		slog.Info("gpio_output_set", "name", o.Name, "on", on)
	}
	o.on = on
	return nil
}

// On reports the last value set
func (o *LogOutput) On() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}
