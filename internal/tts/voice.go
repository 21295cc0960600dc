package tts

import (
	"strings"
)

// Voice is one synthesis voice offered by an engine
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// Name fragments of commonly shipped female voices.
var femaleNameHints = []string{
	"female", "woman", "feminine", "lady", "girl",
	"samantha", "victoria", "karen", "zira", "susan", "fiona", "moira",
	"tessa", "serena", "allison", "ava", "aria", "jenny", "sarah", "emma",
}

func isEnglish(v Voice) bool {
	lang := strings.ToLower(v.Language)
	return lang == "en" || strings.HasPrefix(lang, "en-") || strings.HasPrefix(lang, "en_")
}

func isFemale(v Voice) bool {
	gender := strings.ToLower(v.Gender)
	if gender == "female" || gender == "feminine" {
		return true
	}
	name := strings.ToLower(v.Name)
	for _, hint := range femaleNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// SelectVoice picks the voice to speak with: the preferred id when offered,
// then a female English voice, then any English voice. Returns nil when none fits.
func SelectVoice(voices []Voice, preferredID string) *Voice {
	if preferredID != "" {
		for i := range voices {
			if voices[i].ID == preferredID {
				v := voices[i]
				return &v
			}
		}
	}

	var english *Voice
	for i := range voices {
		if !isEnglish(voices[i]) {
			continue
		}
		if isFemale(voices[i]) {
			v := voices[i]
			return &v
		}
		if english == nil {
			v := voices[i]
			english = &v
		}
	}
	return english
}
