// internal/writer/builder.go
package writer

import (
	cfg "github.com/tamzrod/modbus-bridge/internal/config"
)

// BuildStatusPlans collects the status plans of every device that opted in.
// Assumes config has already passed validation.
func BuildStatusPlans(c *cfg.Config) []StatusPlan {
	if c.StatusMemory == nil {
		return nil
	}

	var plans []StatusPlan
	for _, b := range c.Bridges {
		for _, d := range b.Devices {
			if d.StatusSlot == nil {
				continue
			}
			plans = append(plans, StatusPlan{
				Component:  d.ID,
				UnitID:     c.StatusMemory.UnitID,
				BaseSlot:   *d.StatusSlot,
				DeviceName: d.DeviceName,
			})
		}
	}
	return plans
}
