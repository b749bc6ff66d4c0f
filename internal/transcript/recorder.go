// Package transcript collects the session conversation and persists it as
// a JSON sidecar per session.
package transcript

import (
	"sync"
	"time"

	"github.com/medstra/streaming-avatar/internal/events"
)

// Speaker labels one side of the conversation.
type Speaker string

const (
	SpeakerAvatar Speaker = "avatar"
	SpeakerUser   Speaker = "user"
)

// Entry is one finalized utterance.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder accumulates the conversation. Avatar speech arrives as partial
// fragments correlated by task id and is finalized on stop-talking; user
// speech arrives as whole messages.
type Recorder struct {
	mu      sync.Mutex
	acc     events.Accumulator
	entries []Entry
	now     func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Attach subscribes the recorder to the bridge events it consumes.
func (r *Recorder) Attach(bridge *events.Bridge) {
	bridge.On(events.AvatarTalkingMessage, func(ev events.Event) {
		msg := ev.(events.AvatarTalkingMessageEvent)
		r.AppendAvatarFragment(msg.TaskID, msg.Message)
	})
	bridge.On(events.AvatarStopTalking, func(events.Event) {
		r.FinalizeAvatarUtterance()
	})
	bridge.On(events.UserTalkingMessage, func(ev events.Event) {
		msg := ev.(events.UserTalkingMessageEvent)
		r.AddUserMessage(msg.TaskID, msg.Message)
	})
}

// AppendAvatarFragment feeds one partial avatar message. A task id change
// finalizes the previous utterance implicitly.
func (r *Recorder) AppendAvatarFragment(taskID, fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done := r.acc.Append(taskID, fragment); done != nil {
		r.appendLocked(SpeakerAvatar, done.Text, done.TaskID)
	}
}

// FinalizeAvatarUtterance closes the in-progress avatar utterance, if any,
// and returns its text.
func (r *Recorder) FinalizeAvatarUtterance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := r.acc.Finalize()
	if done == nil {
		return ""
	}
	r.appendLocked(SpeakerAvatar, done.Text, done.TaskID)
	return done.Text
}

// AddUserMessage records one complete user message.
func (r *Recorder) AddUserMessage(taskID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(SpeakerUser, text, taskID)
}

func (r *Recorder) appendLocked(sp Speaker, text, taskID string) {
	if text == "" {
		return
	}
	r.entries = append(r.entries, Entry{
		Speaker:   sp,
		Text:      text,
		TaskID:    taskID,
		Timestamp: r.now().UTC(),
	})
}

// Entries returns a snapshot of the conversation so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
