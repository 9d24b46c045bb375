// Package lang guesses the corpus language of a single word.
package lang

const (
	English = "en"
	Korean  = "ko"
)

// Detect returns Korean when word contains a precomposed Hangul syllable and
// English otherwise.
func Detect(word string) string {
	for _, r := range word {
		if r >= '가' && r <= '힣' {
			return Korean
		}
	}
	return English
}
