package domain

import "time"

type ProjectStatus string

const (
	ProjectPending   ProjectStatus = "pending"
	ProjectActive    ProjectStatus = "active"
	ProjectRejected  ProjectStatus = "rejected"
	ProjectCompleted ProjectStatus = "completed"
)

type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Summary     string        `json:"summary"`
	Category    string        `json:"category"`
	CreatorID   string        `json:"creator_id"`
	CreatorName string        `json:"creator_name"`
	Goal        float64       `json:"goal"`
	Raised      float64       `json:"raised"`
	Backers     int           `json:"backers"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	EndsAt      time.Time     `json:"ends_at"`
}

// Progress returns the funded share in percent, capped at 100.
func (p Project) Progress() int {
	if p.Goal <= 0 {
		return 0
	}
	pct := int(p.Raised / p.Goal * 100)
	if pct > 100 {
		return 100
	}
	return pct
}

// DaysLeft returns whole days until EndsAt, never negative.
func (p Project) DaysLeft(now time.Time) int {
	if !p.EndsAt.After(now) {
		return 0
	}
	return int(p.EndsAt.Sub(now).Hours() / 24)
}
