// Package assessment builds the medical examiner's instruction prompt from
// pre-assessment intake data and detects when a finished avatar utterance
// asks for report generation.
package assessment

import "fmt"

// Type selects the assessment protocol the examiner follows.
type Type string

const (
	TypeCardiovascular Type = "cardiovascular"
	TypeNeurological   Type = "neurological"
	TypeRespiratory    Type = "respiratory"
	TypeFullScreening  Type = "full"
)

// Profile is the patient intake data collected before the session.
type Profile struct {
	HeightCM          float64
	WeightKG          float64
	Smoker            bool
	ExerciseFrequency string
	Type              Type
	Language          string
}

// BMI derives body mass index from height and weight. Zero height yields
// zero rather than a division fault.
func (p Profile) BMI() float64 {
	if p.HeightCM <= 0 {
		return 0
	}
	m := p.HeightCM / 100
	return p.WeightKG / (m * m)
}

func (p Profile) smokingStatus() string {
	if p.Smoker {
		return "Smoker"
	}
	return "Non-smoker"
}

// languageNames maps supported spoken-language codes to display names.
var languageNames = map[string]string{
	"bg": "Bulgarian",
	"zh": "Chinese",
	"cs": "Czech",
	"da": "Danish",
	"nl": "Dutch",
	"en": "English",
	"fi": "Finnish",
	"fr": "French",
	"de": "German",
	"el": "Greek",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ms": "Malay",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sk": "Slovak",
	"es": "Spanish",
	"sv": "Swedish",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
}

// SupportedLanguage reports whether the given code can be used for the
// session's spoken language.
func SupportedLanguage(code string) bool {
	_, ok := languageNames[code]
	return ok
}

// LanguageName returns the display name for a supported code, or an error
// for anything outside the set.
func LanguageName(code string) (string, error) {
	name, ok := languageNames[code]
	if !ok {
		return "", fmt.Errorf("unsupported language %q", code)
	}
	return name, nil
}
