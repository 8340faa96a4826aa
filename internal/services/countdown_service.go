package services

import (
	"time"

	"sosalert/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CountdownController runs one cancellable delayed activation per emergency.
type CountdownController struct {
	timers *TimerRegistry
	logger *logger.Logger
}

func NewCountdownController(timers *TimerRegistry, log *logger.Logger) *CountdownController {
	return &CountdownController{timers: timers, logger: log}
}

// Start arms action to run after delay, replacing any countdown already armed
// for the emergency. A zero delay still runs action on the timer goroutine.
func (c *CountdownController) Start(emergencyID primitive.ObjectID, delay time.Duration, action func()) {
	if delay < 0 {
		delay = 0
	}
	if !c.timers.Schedule(emergencyID.Hex(), TimerCountdown, delay, action) {
		c.logger.WithEmergencyID(emergencyID).Warn("Countdown not armed, timer registry is stopped")
		return
	}
	c.logger.WithEmergencyID(emergencyID).WithField("delay", delay.String()).Debug("Countdown armed")
}

// Cancel disarms the countdown. It reports whether one was pending; after
// the countdown fired it is a no-op.
func (c *CountdownController) Cancel(emergencyID primitive.ObjectID) bool {
	return c.timers.Cancel(emergencyID.Hex(), TimerCountdown)
}

func (c *CountdownController) IsActive(emergencyID primitive.ObjectID) bool {
	return c.timers.Active(emergencyID.Hex(), TimerCountdown)
}
