package hyperliquid

import (
	"sync"
)

// ControlState is the process-wide trading control state: the
// environment-level live-trading switch, the runtime armed flag and the
// operator kill switch. It is constructed at bot-process start and
// injected into adapters and engines; adapters must read it fresh on every
// order placement since the operator can flip it between evaluation and
// execution.
type ControlState struct {
	mu          sync.RWMutex
	liveEnabled bool
	armed       bool
	killSwitch  bool
}

// NewControlState creates a control state. liveEnabled is the
// environment-level switch; it cannot be changed at runtime.
func NewControlState(liveEnabled bool) *ControlState {
	return &ControlState{liveEnabled: liveEnabled}
}

// LiveEnabled reports the environment-level live-trading switch.
func (c *ControlState) LiveEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveEnabled
}

// SetArmed flips the runtime armed flag. Precondition checks live in the
// adapter's Arm().
func (c *ControlState) SetArmed(armed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = armed
}

// Armed reports the runtime armed flag.
func (c *ControlState) Armed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.armed
}

// TriggerKillSwitch latches the operator kill switch. It also disarms.
func (c *ControlState) TriggerKillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = true
	c.armed = false
}

// ResetKillSwitch clears the kill switch. Re-arming still requires an
// explicit Arm() call.
func (c *ControlState) ResetKillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = false
}

// KillSwitchActive reports whether the kill switch is latched.
func (c *ControlState) KillSwitchActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.killSwitch
}
