// Package events unifies the two asynchronous event sources of a streaming
// avatar session (the media room's data channel and the side-channel
// websocket) behind one typed publish/subscribe surface.
package events

import (
	"encoding/json"
	"fmt"
)

// Type names one of the closed set of session events. The string values
// are the wire discriminants used by the remote service.
type Type string

const (
	AvatarStartTalking   Type = "avatar_start_talking"
	AvatarStopTalking    Type = "avatar_stop_talking"
	AvatarTalkingMessage Type = "avatar_talking_message"
	AvatarEndMessage     Type = "avatar_end_message"
	UserTalkingMessage   Type = "user_talking_message"
	UserEndMessage       Type = "user_end_message"
	UserStart            Type = "user_start"
	UserStop             Type = "user_stop"
	UserSilence          Type = "user_silence"
	StreamReady          Type = "stream_ready"
	StreamDisconnected   Type = "stream_disconnected"
)

// Event is implemented by every session event. Payloads are concrete
// structs; consumers type-assert on the event they subscribed to.
type Event interface {
	EventType() Type
}

// Room data-channel events. All carry the task id correlating streamed
// partial fragments into one logical utterance.

type AvatarStartTalkingEvent struct {
	TaskID string `json:"task_id"`
}

func (AvatarStartTalkingEvent) EventType() Type { return AvatarStartTalking }

type AvatarStopTalkingEvent struct {
	TaskID string `json:"task_id"`
}

func (AvatarStopTalkingEvent) EventType() Type { return AvatarStopTalking }

type AvatarTalkingMessageEvent struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

func (AvatarTalkingMessageEvent) EventType() Type { return AvatarTalkingMessage }

type AvatarEndMessageEvent struct {
	TaskID string `json:"task_id"`
}

func (AvatarEndMessageEvent) EventType() Type { return AvatarEndMessage }

type UserTalkingMessageEvent struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

func (UserTalkingMessageEvent) EventType() Type { return UserTalkingMessage }

type UserEndMessageEvent struct {
	TaskID string `json:"task_id"`
}

func (UserEndMessageEvent) EventType() Type { return UserEndMessage }

// Side-channel websocket events.

type UserStartEvent struct{}

func (UserStartEvent) EventType() Type { return UserStart }

type UserStopEvent struct{}

func (UserStopEvent) EventType() Type { return UserStop }

// UserSilenceEvent reports ongoing user silence. SilenceTimes counts how
// often the silence prompt fired; CountDown is the seconds remaining until
// the next prompt.
type UserSilenceEvent struct {
	SilenceTimes int `json:"silence_times"`
	CountDown    int `json:"count_down"`
}

func (UserSilenceEvent) EventType() Type { return UserSilence }

// ParseRoomData decodes a JSON message from the media room's data channel
// into its typed event. Unknown or malformed payloads return an error so
// the caller can log and drop them.
func ParseRoomData(raw []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("parse room data message: %w", err)
	}
	switch head.Type {
	case AvatarStartTalking:
		var ev AvatarStartTalkingEvent
		return decodeInto(raw, &ev)
	case AvatarStopTalking:
		var ev AvatarStopTalkingEvent
		return decodeInto(raw, &ev)
	case AvatarTalkingMessage:
		var ev AvatarTalkingMessageEvent
		return decodeInto(raw, &ev)
	case AvatarEndMessage:
		var ev AvatarEndMessageEvent
		return decodeInto(raw, &ev)
	case UserTalkingMessage:
		var ev UserTalkingMessageEvent
		return decodeInto(raw, &ev)
	case UserEndMessage:
		var ev UserEndMessageEvent
		return decodeInto(raw, &ev)
	}
	return nil, fmt.Errorf("unknown room data message type %q", head.Type)
}

// ParseSideChannel decodes a JSON control message from the side-channel
// websocket into its typed event.
func ParseSideChannel(raw []byte) (Event, error) {
	var head struct {
		EventType Type `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("parse side-channel message: %w", err)
	}
	switch head.EventType {
	case UserStart:
		return UserStartEvent{}, nil
	case UserStop:
		return UserStopEvent{}, nil
	case UserSilence:
		var ev UserSilenceEvent
		return decodeInto(raw, &ev)
	}
	return nil, fmt.Errorf("unknown side-channel event type %q", head.EventType)
}

// decodeInto unmarshals into the typed struct and returns it by value so
// consumers always receive value events regardless of source.
func decodeInto[T Event](raw []byte, ev *T) (Event, error) {
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("parse %s event: %w", (*ev).EventType(), err)
	}
	return *ev, nil
}
