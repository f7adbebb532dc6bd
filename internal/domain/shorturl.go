package domain

import "time"

// ShortURL maps a short code to a target URL.
type ShortURL struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	TargetURL   string    `json:"target_url"`
	ShortURL    string    `json:"short_url,omitempty"`
	TotalClicks int64     `json:"total_clicks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Device classes reported in visit analytics.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Visit is one recorded access of a short URL.
type Visit struct {
	ShortURLID string    `json:"-"`
	UserAgent  string    `json:"user_agent"`
	Device     string    `json:"device"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	VisitedAt  time.Time `json:"visited_at"`
}

// ShortURLAnalytics is a short URL with its most recent visits.
type ShortURLAnalytics struct {
	ShortURL
	Visits []Visit `json:"visits"`
}
