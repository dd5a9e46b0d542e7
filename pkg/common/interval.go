package common

import "fmt"

type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

func (i *Interval) Equal(o *Interval) bool {
	return i.Months == o.Months &&
		i.Days == o.Days &&
		i.Micros == o.Micros
}

// Less compares field by field, months first. It matches the order of the
// sortable encoding.
func (i *Interval) Less(o *Interval) bool {
	if i.Months != o.Months {
		return i.Months < o.Months
	}
	if i.Days != o.Days {
		return i.Days < o.Days
	}
	return i.Micros < o.Micros
}

func (i Interval) String() string {
	return fmt.Sprintf("%d months %d days %d us", i.Months, i.Days, i.Micros)
}
