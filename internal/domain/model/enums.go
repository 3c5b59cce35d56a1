package model

import (
	"fmt"
	"strings"
)

// Environment names a deployment target for brokerage credentials.
type Environment string

const (
	EnvironmentSandbox Environment = "sandbox"
	EnvironmentProd    Environment = "prod"
)

// Environments lists every supported environment in display order.
var Environments = []Environment{EnvironmentSandbox, EnvironmentProd}

// Valid reports whether e is one of the supported environments.
func (e Environment) Valid() bool {
	switch e {
	case EnvironmentSandbox, EnvironmentProd:
		return true
	default:
		return false
	}
}

// ParseEnvironment normalizes s and returns the matching Environment.
func ParseEnvironment(s string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(s)))
	if !env.Valid() {
		return "", fmt.Errorf("unknown environment %q", s)
	}
	return env, nil
}

// AlertTrigger identifies one of the two daily escalation checkpoints.
type AlertTrigger string

const (
	// AlertTriggerExpiry fires just after the daily expiry instant (local midnight).
	AlertTriggerExpiry AlertTrigger = "expiry"
	// AlertTriggerFallback fires one hour before market open.
	AlertTriggerFallback AlertTrigger = "fallback"
)

// CheckAction describes what a single trigger check did.
type CheckAction string

const (
	CheckActionOutsideWindow  CheckAction = "outside_window"
	CheckActionAlreadySent    CheckAction = "already_sent"
	CheckActionSuppressed     CheckAction = "suppressed"
	CheckActionSent           CheckAction = "sent"
	CheckActionDeliveryFailed CheckAction = "delivery_failed"
	CheckActionSkipped        CheckAction = "skipped"
)
