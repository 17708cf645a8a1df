package signal

import (
	"fmt"
	"strings"
)

// clarifyResetWords is the minimum word count for an utterance to count as
// recognized speech and reset the ladder.
const clarifyResetWords = 4

// Clarifier escalates re-prompts when the user's speech cannot be
// understood. Three rungs: an open question, then a binary choice, then a
// pause while waiting for any clear input.
type Clarifier struct {
	misses int
}

// Prompt records one failed understanding and returns what the coach
// should say next. choiceA and choiceB seed the binary rung; either may be
// empty, in which case a generic binary prompt is used.
func (c *Clarifier) Prompt(choiceA, choiceB string) string {
	c.misses++
	switch c.misses {
	case 1:
		return "Sorry, I didn't catch that. What would you like to do?"
	case 2:
		if choiceA != "" && choiceB != "" {
			return fmt.Sprintf("I'm still having trouble hearing you. Did you want %s, or %s?", choiceA, choiceB)
		}
		return "I'm still having trouble hearing you. Did you want to keep going, or take a break?"
	default:
		return "I'm having trouble hearing you, so I'll pause here. Say anything when you're ready to continue."
	}
}

// Exhausted reports whether the ladder has reached the pause-and-wait rung.
func (c *Clarifier) Exhausted() bool { return c.misses >= 3 }

// Misses returns how many consecutive failures have been recorded.
func (c *Clarifier) Misses() int { return c.misses }

// Heard feeds a recognized transcript. A sufficiently long utterance means
// the channel is working again and resets the ladder.
func (c *Clarifier) Heard(transcript string) {
	if len(strings.Fields(transcript)) >= clarifyResetWords {
		c.misses = 0
	}
}

// Reset clears the ladder unconditionally, e.g. after a command succeeded.
func (c *Clarifier) Reset() { c.misses = 0 }
