// sportlink/utils/color/color.go
package color

import (
	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	mutedColor   = color.New(color.FgHiBlack)
)

func ColorHeader(s string) string {
	return headerColor.Sprint(s)
}

func ColorInfo(s string) string {
	return infoColor.Sprint(s)
}

func ColorWarning(s string) string {
	return warningColor.Sprint(s)
}

func ColorError(s string) string {
	return errorColor.Sprint(s)
}

func ColorMuted(s string) string {
	return mutedColor.Sprint(s)
}

// Usage picks a color for a storage percentage: green, then yellow past 70, red past 90.
func Usage(pct float64, s string) string {
	switch {
	case pct >= 90:
		return ColorError(s)
	case pct >= 70:
		return ColorWarning(s)
	}
	return ColorInfo(s)
}

// Disable turns colors off, for piped output and tests.
func Disable() {
	color.NoColor = true
}
