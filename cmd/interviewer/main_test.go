package main

import (
	"context"
	"errors"
	"testing"

	"github.com/medstra/streaming-avatar/internal/room"
)

type orderedStarter struct {
	calls *[]string
	err   error
}

func (s *orderedStarter) StartStreaming(context.Context) error {
	*s.calls = append(*s.calls, "start_streaming")
	return s.err
}

type orderedTransport struct {
	calls  *[]string
	events chan room.TransportEvent
}

func (t *orderedTransport) PrepareConnection(string, string) {}

func (t *orderedTransport) Connect(context.Context, string, string) error {
	*t.calls = append(*t.calls, "connect")
	return nil
}

func (t *orderedTransport) Events() <-chan room.TransportEvent { return t.events }

func (t *orderedTransport) Close() error { return nil }

func TestJoinRoomStartsStreamingBeforeConnect(t *testing.T) {
	var calls []string
	err := joinRoom(context.Background(),
		&orderedStarter{calls: &calls},
		&orderedTransport{calls: &calls},
		"wss://room.example", "tok")
	if err != nil {
		t.Fatalf("joinRoom: %v", err)
	}
	if len(calls) != 2 || calls[0] != "start_streaming" || calls[1] != "connect" {
		t.Fatalf("call order = %v, want [start_streaming connect]", calls)
	}
}

func TestJoinRoomSkipsConnectWhenStartFails(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	err := joinRoom(context.Background(),
		&orderedStarter{calls: &calls, err: boom},
		&orderedTransport{calls: &calls},
		"wss://room.example", "tok")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped start failure", err)
	}
	for _, c := range calls {
		if c == "connect" {
			t.Fatal("transport connected after streaming start failed")
		}
	}
}
