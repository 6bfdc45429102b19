package lockout

import "time"

type Type string

const (
	TypeAccount Type = "account"
	TypeIP      Type = "ip"
)

// Counter is the sliding-window failure state for one subject (account or
// IP). DistinctEmailCount is only populated for IP counters.
type Counter struct {
	AttemptCount       int
	DistinctEmailCount int
	WindowStart        time.Time
	LockedUntil        *time.Time
}

func (c *Counter) lockedAt(now time.Time) bool {
	return c != nil && c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// Decision is the structured admit/deny result. A policy deny is a value,
// never an error; only storage failures surface as errors so callers can
// fail closed.
type Decision struct {
	Admitted bool

	// Set on the admit path when the account is close to locking out.
	WarningAttemptsRemaining int

	// Deny details, fixed per lockout type.
	LockoutType        Type
	RemainingSeconds   int
	AttemptCount       int
	MaxAttempts        int
	TotalAttemptCount  int
	DistinctEmailCount int
}

func admit() Decision {
	return Decision{Admitted: true}
}

func denyAccount(c *Counter, max int, now time.Time) Decision {
	return Decision{
		LockoutType:      TypeAccount,
		RemainingSeconds: remainingSeconds(c.LockedUntil, now),
		AttemptCount:     c.AttemptCount,
		MaxAttempts:      max,
	}
}

func denyIP(c *Counter, max int, now time.Time) Decision {
	return Decision{
		LockoutType:        TypeIP,
		RemainingSeconds:   remainingSeconds(c.LockedUntil, now),
		AttemptCount:       c.AttemptCount,
		MaxAttempts:        max,
		TotalAttemptCount:  c.AttemptCount,
		DistinctEmailCount: c.DistinctEmailCount,
	}
}

func remainingSeconds(until *time.Time, now time.Time) int {
	if until == nil {
		return 0
	}
	secs := int(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
