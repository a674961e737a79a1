// Package protocol encodes and decodes the JSON command envelope spoken
// with the signaling server.
package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/goccy/go-json"
)

const (
	CmdJoinRoom      = "joinRoom"
	CmdLeaveRoom     = "leaveRoom"
	CmdGetStreamInfo = "getStreamInfo"

	CmdNotification    = "notification"
	CmdRoomInformation = "roomInformation"

	DefJoinedRoom = "joinedTheRoom"
)

const (
	fieldCommand    = "command"
	fieldDefinition = "definition"
	fieldRoomID     = "roomId"
	fieldStreamID   = "streamId"
	fieldStreams    = "streams"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrMissingCommand = errors.New("missing command")
)

// Command is an outbound envelope. StreamID is always written; an empty
// value means "no preference" or "not assigned yet".
type Command struct {
	Command  string          `json:"command"`
	RoomID   domain.RoomID   `json:"roomId,omitempty"`
	StreamID domain.StreamID `json:"streamId"`
}

func JoinRoom(room domain.RoomID, stream domain.StreamID) Command {
	return Command{Command: CmdJoinRoom, RoomID: room, StreamID: stream}
}

func LeaveRoom(room domain.RoomID, stream domain.StreamID) Command {
	return Command{Command: CmdLeaveRoom, RoomID: room, StreamID: stream}
}

func GetStreamInfo(room domain.RoomID, stream domain.StreamID) Command {
	return Command{Command: CmdGetStreamInfo, RoomID: room, StreamID: stream}
}

func Encode(c Command) (core.Frame, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Command, err)
	}
	return b, nil
}

// Message is a decoded inbound envelope. Fields absent from the wire, or
// carrying an unexpected type, are left at their zero value; Streams is nil
// in that case and non-nil (possibly empty) when a list was sent.
type Message struct {
	Command    string
	Definition string
	RoomID     domain.RoomID
	StreamID   domain.StreamID
	Streams    []domain.StreamID
}

func (m Message) IsJoinedNotification() bool {
	return m.Command == CmdNotification && m.Definition == DefJoinedRoom
}

// Decode parses one inbound text message. Only a body that is not a JSON
// object, or one without a string command, is an error.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	raw, ok := fields[fieldCommand]
	if !ok || json.Unmarshal(raw, &m.Command) != nil || m.Command == "" {
		return Message{}, ErrMissingCommand
	}

	m.Definition = stringField(fields, fieldDefinition)
	m.RoomID = domain.RoomID(stringField(fields, fieldRoomID))
	m.StreamID = domain.StreamID(stringField(fields, fieldStreamID))

	if raw, ok := fields[fieldStreams]; ok {
		var streams []string
		if err := json.Unmarshal(raw, &streams); err == nil && streams != nil {
			m.Streams = make([]domain.StreamID, 0, len(streams))
			for _, s := range streams {
				m.Streams = append(m.Streams, domain.StreamID(s))
			}
		}
	}
	return m, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
