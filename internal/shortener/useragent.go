package shortener

import (
	"strings"

	"github.com/utafrali/authgate/internal/domain"
)

const unknown = "Unknown"

// Agent is the coarse classification of a User-Agent header.
type Agent struct {
	Browser string
	OS      string
	Device  string
}

// ParseUserAgent classifies ua by substring matching. Order matters: most
// browsers advertise several engines, and mobile platforms also mention
// their desktop ancestors.
func ParseUserAgent(ua string) Agent {
	s := strings.ToLower(strings.TrimSpace(ua))
	if s == "" {
		return Agent{Browser: unknown, OS: unknown, Device: domain.DeviceUnknown}
	}

	return Agent{
		Browser: browserOf(s),
		OS:      osOf(s),
		Device:  deviceOf(s),
	}
}

func browserOf(s string) string {
	switch {
	case strings.Contains(s, "edg"):
		return "Edge"
	case strings.Contains(s, "opr/"), strings.Contains(s, "opera"):
		return "Opera"
	case strings.Contains(s, "firefox"), strings.Contains(s, "fxios"):
		return "Firefox"
	case strings.Contains(s, "chrome"), strings.Contains(s, "crios"):
		return "Chrome"
	case strings.Contains(s, "safari"):
		return "Safari"
	case strings.Contains(s, "msie"), strings.Contains(s, "trident"):
		return "Internet Explorer"
	default:
		return unknown
	}
}

func osOf(s string) string {
	switch {
	case strings.Contains(s, "windows"):
		return "Windows"
	case strings.Contains(s, "android"):
		return "Android"
	case strings.Contains(s, "iphone"), strings.Contains(s, "ipad"), strings.Contains(s, "ios"):
		return "iOS"
	case strings.Contains(s, "mac"):
		return "macOS"
	case strings.Contains(s, "linux"):
		return "Linux"
	default:
		return unknown
	}
}

func deviceOf(s string) string {
	switch {
	case strings.Contains(s, "bot"), strings.Contains(s, "crawler"), strings.Contains(s, "spider"):
		return domain.DeviceBot
	case strings.Contains(s, "ipad"), strings.Contains(s, "tablet"):
		return domain.DeviceTablet
	case strings.Contains(s, "mobile"), strings.Contains(s, "iphone"), strings.Contains(s, "android"):
		return domain.DeviceMobile
	default:
		return domain.DeviceDesktop
	}
}
