package events

import "strings"

// Utterance is one finalized logical message assembled from streamed
// partial fragments sharing a task id.
type Utterance struct {
	TaskID string
	Text   string
}

// Accumulator concatenates partial-message fragments by task id. Fragments
// with the task id of the current accumulation append to it; a fragment
// with a new task id finalizes the previous accumulation and starts a
// fresh, empty one. Not safe for concurrent use; callers feed it from the
// bridge's synchronous delivery.
type Accumulator struct {
	taskID string
	active bool
	buf    strings.Builder
}

// Append adds a fragment. When the fragment's task id differs from the
// accumulation in progress, the previous utterance is returned finalized;
// otherwise the return is nil.
func (a *Accumulator) Append(taskID, fragment string) *Utterance {
	var done *Utterance
	if a.active && taskID != a.taskID {
		done = a.take()
	}
	a.taskID = taskID
	a.active = true
	a.buf.WriteString(fragment)
	return done
}

// Finalize ends the accumulation in progress and returns it, or nil when
// nothing has been accumulated since the last finalize.
func (a *Accumulator) Finalize() *Utterance {
	if !a.active {
		return nil
	}
	return a.take()
}

// Current returns the text accumulated so far without finalizing.
func (a *Accumulator) Current() string { return a.buf.String() }

func (a *Accumulator) take() *Utterance {
	u := &Utterance{TaskID: a.taskID, Text: a.buf.String()}
	a.buf.Reset()
	a.taskID = ""
	a.active = false
	return u
}
