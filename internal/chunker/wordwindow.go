package chunker

import "strings"

// SplitWords cuts text into windows of at most maxWords words. Each window
// after the first starts with the last overlap words of its predecessor. A
// trailing window is only emitted when it carries words not already covered.
func SplitWords(text string, maxWords, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if overlap < 0 || overlap >= maxWords {
		overlap = 0
	}

	var windows []string
	start := 0
	for {
		end := start + maxWords
		if end >= len(words) {
			windows = append(windows, strings.Join(words[start:], " "))
			return windows
		}
		windows = append(windows, strings.Join(words[start:end], " "))
		start = end - overlap
	}
}
