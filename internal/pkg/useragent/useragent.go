// Package useragent classifies raw User-Agent strings into the coarse
// device and browser labels stored on scan records.
package useragent

import (
	"go.elara.ws/pcre"
)

// Classification labels. These are stored verbatim on qr_scans rows,
// so renaming any of them is a data migration.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"

	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOpera   = "Opera"
	BrowserIE      = "Internet Explorer"

	Unknown = "Unknown"
)

// Info holds the classification result for one User-Agent string.
type Info struct {
	DeviceType string
	Browser    string
}

var (
	reMobileToken = pcre.MustCompile(`(?i)Mobile|Android|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
	reIPad        = pcre.MustCompile(`(?i)iPad`)
	reAndroid     = pcre.MustCompile(`(?i)Android`)
	reMobile      = pcre.MustCompile(`(?i)Mobile`)
	reIPhoneIPod  = pcre.MustCompile(`(?i)iPhone|iPod`)
	reTablet      = pcre.MustCompile(`(?i)Tablet`)

	reChrome  = pcre.MustCompile(`(?i)Chrome`)
	reFirefox = pcre.MustCompile(`(?i)Firefox`)
	reSafari  = pcre.MustCompile(`(?i)Safari`)
	reEdge    = pcre.MustCompile(`(?i)Edge`)
	reOpera   = pcre.MustCompile(`(?i)Opera`)
	reIE      = pcre.MustCompile(`(?i)MSIE|Trident`)
)

// Classify maps a raw User-Agent string to a device type and browser name.
// It is pure and total: an empty string yields Unknown/Unknown, anything
// else yields non-empty labels with first-match-wins rule ordering.
func Classify(userAgent string) Info {
	if userAgent == "" {
		return Info{DeviceType: Unknown, Browser: Unknown}
	}

	return Info{
		DeviceType: classifyDevice(userAgent),
		Browser:    classifyBrowser(userAgent),
	}
}

func classifyDevice(userAgent string) string {
	if reMobileToken.MatchString(userAgent) {
		switch {
		case reIPad.MatchString(userAgent):
			// iPad wins over any other mobile token present.
			return DeviceTablet
		case reAndroid.MatchString(userAgent) && reMobile.MatchString(userAgent):
			return DeviceMobile
		case reIPhoneIPod.MatchString(userAgent):
			return DeviceMobile
		default:
			return DeviceMobile
		}
	}

	if reTablet.MatchString(userAgent) {
		return DeviceTablet
	}

	return DeviceDesktop
}

func classifyBrowser(userAgent string) string {
	switch {
	case reChrome.MatchString(userAgent) && !reEdge.MatchString(userAgent):
		return BrowserChrome
	case reFirefox.MatchString(userAgent):
		return BrowserFirefox
	case reSafari.MatchString(userAgent) && !reChrome.MatchString(userAgent):
		return BrowserSafari
	case reEdge.MatchString(userAgent):
		return BrowserEdge
	case reOpera.MatchString(userAgent):
		return BrowserOpera
	case reIE.MatchString(userAgent):
		return BrowserIE
	default:
		return Unknown
	}
}
