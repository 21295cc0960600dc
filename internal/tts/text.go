package tts

import (
	"regexp"
	"strings"
)

var (
	emphasisMarkers = regexp.MustCompile("\\*\\*|__|[*`~]")
	headingMarkers  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	lineBreaks      = regexp.MustCompile(`\s*\n+\s*`)
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
	doubledPauses   = regexp.MustCompile(`([.!?:;,])\.`)
)

// CleanForSpeech strips markdown emphasis and turns line breaks into pauses.
func CleanForSpeech(text string) string {
	text = headingMarkers.ReplaceAllString(text, "")
	text = emphasisMarkers.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = lineBreaks.ReplaceAllString(text, ". ")
	text = doubledPauses.ReplaceAllString(text, "$1")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
