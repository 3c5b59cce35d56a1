package model

import "time"

// DateLayout is the layout of exchange-local calendar dates in alert state.
const DateLayout = "2006-01-02"

// AlertDayState records whether a trigger has been resolved for one
// exchange-local calendar date. Sent never reverts to false within a date.
type AlertDayState struct {
	Trigger   AlertTrigger
	Date      string
	Sent      bool
	UpdatedAt time.Time
}

// AlertReport aggregates one round of alert checks.
type AlertReport struct {
	Timestamp         time.Time `json:"timestamp"`
	ExpiryAlertSent   bool      `json:"expiry_alert_sent"`
	FallbackAlertSent bool      `json:"fallback_alert_sent"`
	TokensValid       bool      `json:"tokens_valid"`
	Errors            []string  `json:"errors"`
}

// KeepAliveStatus is a snapshot of the keep-alive loop.
type KeepAliveStatus struct {
	Running   bool
	LastRunAt time.Time
	Interval  time.Duration
}
