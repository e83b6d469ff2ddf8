package order

import "time"

type IDGenerator interface {
	NewID() string
}

// Clock lets tests pin the time used for stale-order cutoffs.
type Clock func() time.Time
