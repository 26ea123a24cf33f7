package bridge

import "strings"

type Status string

const (
	StatusExcellent Status = "EXCELLENT"
	StatusGood      Status = "GOOD"
	StatusFair      Status = "FAIR"
	StatusPoor      Status = "POOR"
	StatusCritical  Status = "CRITICAL"
)

// MapStatus canonicalizes a classifier health-state label. Unknown and empty
// labels map to FAIR.
func MapStatus(label string) Status {
	switch Status(strings.ToUpper(label)) {
	case StatusExcellent:
		return StatusExcellent
	case StatusGood:
		return StatusGood
	case StatusFair:
		return StatusFair
	case StatusPoor:
		return StatusPoor
	case StatusCritical:
		return StatusCritical
	default:
		return StatusFair
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusExcellent, StatusGood, StatusFair, StatusPoor, StatusCritical:
		return true
	}
	return false
}
