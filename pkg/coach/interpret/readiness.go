package interpret

// readyPhrases are the affirmative start signals.
var readyPhrases = []string{
	"ready", "i'm ready", "im ready", "let's go", "lets go", "let's do it",
	"lets do it", "start", "begin", "go", "let's start", "lets start",
}

// disqualifiers indicate the trigger word is embedded in an unrelated or
// negated sentence ("when I say ready...", "I'm not ready yet").
var disqualifiers = []string{
	"not", "don't", "dont", "won't", "wont", "can't", "cant",
	"when", "if", "before", "almost", "soon", "later", "wait",
	"getting", "nearly",
}

// maxReadyWords bounds how much surrounding speech still counts as a clean
// start signal.
const maxReadyWords = 5

// IsReadySignal reports whether a transcript is an intent-safe "start now"
// utterance rather than a mention of readiness inside a longer sentence.
func IsReadySignal(transcript string) bool {
	text := normalize(transcript)
	w := words(text)
	if len(w) == 0 || len(w) > maxReadyWords {
		return false
	}
	for _, word := range w {
		for _, d := range disqualifiers {
			if word == d {
				return false
			}
		}
	}
	for _, phrase := range readyPhrases {
		if text == phrase || containsPhrase(w, words(phrase)) {
			return true
		}
	}
	return false
}
