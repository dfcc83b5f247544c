package usage

import (
	"fmt"
	"time"
)

// Snapshot is the metered usage of one organization over one period
type Snapshot struct {
	OrgID               int64     `json:"org_id"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	ActiveStudents      int64     `json:"active_students"`
	VideoStorageBytes   int64     `json:"video_storage_bytes"`
	VideoBandwidthBytes int64     `json:"video_bandwidth_bytes"`
	CertificatesIssued  int64     `json:"certificates_issued"`
}

// IsZero reports whether every metered dimension is zero
func (s *Snapshot) IsZero() bool {
	return s.ActiveStudents == 0 && s.VideoStorageBytes == 0 &&
		s.VideoBandwidthBytes == 0 && s.CertificatesIssued == 0
}

// ZeroSnapshot returns an empty snapshot for orgID and period
func ZeroSnapshot(orgID int64, period Period) *Snapshot {
	return &Snapshot{OrgID: orgID, PeriodStart: period.Start, PeriodEnd: period.End}
}

// Period is a half-open calendar month [Start, End) in UTC
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PeriodFor returns the calendar month containing t
func PeriodFor(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// CurrentPeriod returns the month containing now
func CurrentPeriod(now time.Time) Period {
	return PeriodFor(now)
}

// PreviousPeriod returns the month before the one containing now
func PreviousPeriod(now time.Time) Period {
	return PeriodFor(PeriodFor(now).Start.AddDate(0, 0, -1))
}

// Contains reports whether t falls inside the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key is a compact YYYY-MM label for cache keys and object paths
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// ParsePeriod parses a YYYY-MM key into its calendar month
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", key)
	}
	return PeriodFor(t), nil
}
