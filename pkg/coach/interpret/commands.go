package interpret

import "strings"

// Action identifies what the controller should do with a recognized command.
type Action string

const (
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSkip     Action = "skip"
	ActionGoBack   Action = "go_back"
	ActionStop     Action = "stop"
	ActionSlower   Action = "slower"
	ActionFaster   Action = "faster"
	ActionRepeat   Action = "repeat"
	ActionProgress Action = "progress"
	ActionTimeLeft Action = "time_left"
	ActionConfirmRep Action = "confirm_rep"
	ActionMute     Action = "mute"
	ActionUnmute   Action = "unmute"
	ActionHelp     Action = "help"
)

// Command is one entry of the fixed trigger table.
type Command struct {
	Action   Action
	Triggers []string
	Response string
	// Dynamic responses are generated from live session state.
	Dynamic bool
	// RequiresConfirmation holds the action pending a yes/no.
	RequiresConfirmation bool
	ConfirmPrompt        string
}

// commandTable is matched at word boundaries so "stop" never fires inside
// "stopwatch".
var commandTable = []Command{
	{Action: ActionPause, Triggers: []string{"pause", "hold on", "wait", "take a break"}, Response: "Pausing. Say resume when you're ready."},
	{Action: ActionResume, Triggers: []string{"resume", "continue", "keep going", "unpause"}, Response: "Resuming."},
	{Action: ActionSkip, Triggers: []string{"skip", "next exercise", "skip this one", "move on"}, Response: "Skipping ahead."},
	{Action: ActionGoBack, Triggers: []string{"go back", "previous exercise", "last one again"}, Response: "Going back."},
	{
		Action:               ActionStop,
		Triggers:             []string{"stop", "end workout", "end the workout", "i'm done", "quit"},
		Response:             "Ending the session. Nice work today.",
		RequiresConfirmation: true,
		ConfirmPrompt:        "End the session now? Say yes to finish or no to keep going.",
	},
	{Action: ActionSlower, Triggers: []string{"slower", "slow down", "too fast"}, Response: "Slowing the pace down."},
	{Action: ActionFaster, Triggers: []string{"faster", "speed up", "too slow"}, Response: "Picking up the pace."},
	{Action: ActionRepeat, Triggers: []string{"repeat", "say that again", "what was that"}, Response: "", Dynamic: true},
	{Action: ActionProgress, Triggers: []string{"how am i doing", "progress", "where are we"}, Response: "", Dynamic: true},
	{Action: ActionTimeLeft, Triggers: []string{"how much longer", "time left", "how long left"}, Response: "", Dynamic: true},
	{Action: ActionConfirmRep, Triggers: []string{"done", "got it", "one more down", "rep done"}, Response: "Counted."},
	{Action: ActionMute, Triggers: []string{"mute", "stop listening"}, Response: "Muted. Tap the mic to talk again."},
	{Action: ActionUnmute, Triggers: []string{"unmute", "start listening"}, Response: "I'm listening."},
	{Action: ActionHelp, Triggers: []string{"help", "what can i say"}, Response: "You can say pause, resume, skip, go back, slower, faster, or ask how much longer."},
}

// matchCommand scans the table for a trigger phrase present as a whole-word
// sequence in the transcript. Longer trigger phrases win over shorter ones
// so "end workout" beats "end".
func matchCommand(transcriptWords []string) (Command, bool) {
	best := -1
	bestLen := 0
	for i, cmd := range commandTable {
		for _, trig := range cmd.Triggers {
			tw := words(trig)
			if len(tw) > bestLen && containsPhrase(transcriptWords, tw) {
				best = i
				bestLen = len(tw)
			}
		}
	}
	if best < 0 {
		return Command{}, false
	}
	return commandTable[best], true
}

// containsPhrase reports whether phrase appears as consecutive whole words.
func containsPhrase(haystack, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(haystack) {
		return false
	}
	for i := 0; i+len(phrase) <= len(haystack); i++ {
		ok := true
		for j := range phrase {
			if haystack[i+j] != phrase[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// normalize lowercases and strips punctuation, keeping apostrophes inside
// words so "i'm done" survives.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == ' ':
			b.WriteRune(r)
		case r == ',' || r == '.' || r == '!' || r == '?' || r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func words(s string) []string {
	return strings.Fields(normalize(s))
}

var affirmatives = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "confirm": true,
	"absolutely": true, "correct": true, "ok": true, "okay": true,
}

var negatives = map[string]bool{
	"no": true, "nope": true, "cancel": true, "nah": true, "nevermind": true,
	"don't": true, "dont": true,
}

func isAffirmative(w []string) bool {
	if len(w) == 0 || len(w) > 3 {
		return false
	}
	return affirmatives[w[0]]
}

func isNegative(w []string) bool {
	if len(w) == 0 || len(w) > 3 {
		return false
	}
	return negatives[w[0]]
}
