// Package styles holds the colors and text styles of the cqrs CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Primary   = lipgloss.Color("#2563EB")
	Secondary = lipgloss.Color("#0D9488")
	Success   = lipgloss.Color("#16A34A")
	Warning   = lipgloss.Color("#D97706")
	Error     = lipgloss.Color("#DC2626")
	Info      = lipgloss.Color("#0284C7")
	Text      = lipgloss.Color("#F3F4F6")
	TextMuted = lipgloss.Color("#9CA3AF")
	Border    = lipgloss.Color("#4B5563")
)

// Icons.
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "!"
	IconInfo     = "i"
	IconArrow    = "→"
	IconStream   = "⇶"
	IconDatabase = "⛁"
)

// Text styles. They are rebuilt by DisableColors.
var (
	Bold         lipgloss.Style
	Title        lipgloss.Style
	Normal       lipgloss.Style
	Muted        lipgloss.Style
	Highlight    lipgloss.Style
	Code         lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style
	Box          lipgloss.Style
	BoxError     lipgloss.Style
)

func init() {
	build()
}

func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(Warning)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)
	Box = roundedBox(Border)
	BoxError = roundedBox(Error)
}

func roundedBox(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

// FormatSuccess formats a success message with icon.
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon.
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon.
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatKeyValue formats a key-value pair with the key padded to a fixed width.
func FormatKeyValue(key string, value interface{}) string {
	keyStyle := lipgloss.NewStyle().Foreground(TextMuted).Width(16)
	return keyStyle.Render(key+":") + " " + Highlight.Render(fmt.Sprint(value))
}

// DisableColors drops every color, for terminals and pipes without color support.
func DisableColors() {
	none := lipgloss.Color("")
	Primary, Secondary = none, none
	Success, Warning, Error, Info = none, none, none, none
	Text, TextMuted, Border = none, none, none
	build()
}
