package client

import (
	"fmt"
	"time"
)

// Quota is the server-assigned write allowance: Rate pixels every Per seconds.
type Quota struct {
	Rate uint16
	Per  uint16
}

// Delay is the minimum interval between two pixel writes. It reports false
// while the quota allows no writes at all.
func (q Quota) Delay() (time.Duration, bool) {
	if q.Rate == 0 {
		return 0, false
	}
	return time.Duration(q.Per) * time.Second / time.Duration(q.Rate), true
}

func (q Quota) String() string {
	d, ok := q.Delay()
	if !ok {
		return fmt.Sprintf("%d pixels per %ds (writes disabled)", q.Rate, q.Per)
	}
	return fmt.Sprintf("%d pixels per %ds (delay %v)", q.Rate, q.Per, d)
}
