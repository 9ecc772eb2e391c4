package color

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
)

var profile = termenv.ANSI256

func init() {
	if os.Getenv("NO_COLOR") != "" || !isTerminal() {
		profile = termenv.Ascii
	}
}

func isTerminal() bool {
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

func EnableColor(enable bool) {
	if enable {
		profile = termenv.ANSI256
		return
	}
	profile = termenv.Ascii
}

func IsColorEnabled() bool {
	return profile != termenv.Ascii
}

func Colorize(color, text string) string {
	if !IsColorEnabled() {
		return text
	}
	return termenv.String(text).Foreground(profile.Color(color)).String()
}

func RedText(text string) string {
	return Colorize("9", text)
}

func GreenText(text string) string {
	return Colorize("2", text)
}

func YellowText(text string) string {
	return Colorize("3", text)
}

func CyanText(text string) string {
	return Colorize("6", text)
}

func GrayText(text string) string {
	return Colorize("8", text)
}

func BoldText(text string) string {
	if !IsColorEnabled() {
		return text
	}
	return termenv.String(text).Bold().String()
}

// Heading renders a section title.
func Heading(title string) string {
	return BoldText(GreenText(fmt.Sprintf("=== %s ===", title)))
}

// Field renders one "name: value" line of a report.
func Field(name string, v any) string {
	return fmt.Sprintf("%s %v", CyanText(name+":"), v)
}

func Error(message string) string {
	return RedText("Error: ") + message
}
