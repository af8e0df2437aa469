package session

import (
	"strings"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
)

const unknown = "Unknown"

// ParseUserAgent classifies a User-Agent header by case-insensitive substring
// matching. Order matters: Edge and Opera advertise Chrome, Android and iOS
// advertise Linux and Mac OS.
func ParseUserAgent(ua string) entity.Device {
	if ua == "" {
		return entity.Device{Browser: unknown, OperatingSystem: unknown, DeviceModel: unknown}
	}
	s := strings.ToLower(ua)
	return entity.Device{
		Browser:         browser(s),
		OperatingSystem: operatingSystem(s),
		DeviceModel:     deviceModel(s),
	}
}

func browser(s string) string {
	switch {
	case strings.Contains(s, "edg"):
		return "Edge"
	case strings.Contains(s, "opr") || strings.Contains(s, "opera"):
		return "Opera"
	case strings.Contains(s, "chrome") || strings.Contains(s, "crios"):
		return "Chrome"
	case strings.Contains(s, "firefox") || strings.Contains(s, "fxios"):
		return "Firefox"
	case strings.Contains(s, "safari"):
		return "Safari"
	}
	return unknown
}

func operatingSystem(s string) string {
	switch {
	case strings.Contains(s, "windows"):
		return "Windows"
	case strings.Contains(s, "android"):
		return "Android"
	case strings.Contains(s, "iphone") || strings.Contains(s, "ipad") || strings.Contains(s, "ios"):
		return "iOS"
	case strings.Contains(s, "mac os") || strings.Contains(s, "macos"):
		return "macOS"
	case strings.Contains(s, "linux"):
		return "Linux"
	}
	return unknown
}

func deviceModel(s string) string {
	switch {
	case strings.Contains(s, "ipad"):
		return "iPad"
	case strings.Contains(s, "iphone"):
		return "iPhone"
	case strings.Contains(s, "android"):
		if strings.Contains(s, "mobile") {
			return "Android Device"
		}
		return "Android Tablet"
	case strings.Contains(s, "mobile"):
		return "Mobile Device"
	}
	return "Desktop"
}
