package assessment

import (
	"regexp"
	"strings"
)

// DefaultTriggerPhrases are the report-generation cues scanned for in
// completed examiner utterances.
var DefaultTriggerPhrases = []string{
	"generating reports",
	"generate report",
	"generating",
	"patient report",
	"underwriting report",
	"generate",
	"reports",
	"report",
}

var spaceRe = regexp.MustCompile(`\s+`)

// TriggerDetector scans utterance text for report-generation phrases.
// Matching is case-insensitive and tolerant of punctuation around the
// phrase. Window limits the scan to the first N words; zero scans the
// whole utterance.
type TriggerDetector struct {
	Phrases []string
	Window  int
}

func NewTriggerDetector(phrases []string, window int) *TriggerDetector {
	if len(phrases) == 0 {
		phrases = DefaultTriggerPhrases
	}
	return &TriggerDetector{Phrases: phrases, Window: window}
}

// Detect returns (matched, remainder). remainder is the text following the
// matched phrase, cleaned of leading punctuation, or empty when the phrase
// ends the utterance or nothing matched.
func (d *TriggerDetector) Detect(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = spaceRe.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	scan := words
	if d.Window > 0 && len(scan) > d.Window {
		scan = scan[:d.Window]
	}
	for _, phrase := range d.Phrases {
		pWords := strings.Fields(strings.ToLower(phrase))
		if len(pWords) == 0 {
			continue
		}
		for i := 0; i+len(pWords) <= len(scan); i++ {
			match := true
			for j := range pWords {
				if normalizeToken(scan[i+j]) != pWords[j] {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			remainder := ""
			if i+len(pWords) < len(words) {
				remainder = strings.Join(words[i+len(pWords):], " ")
				remainder = strings.Trim(remainder, " ,.!?;:-\"'`~")
			}
			return true, remainder
		}
	}
	return false, ""
}

func normalizeToken(tok string) string {
	return strings.Trim(tok, " ,.!?;:-\"'`~")
}
