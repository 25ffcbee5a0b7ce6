// Package proto defines the JSON wire envelopes exchanged over a chat
// connection. Every frame is a single JSON object discriminated by its
// "type" field.
package proto

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound message types.
const (
	InChat      = "chat"
	InSetName   = "setName"
	InStatus    = "status"
	InListUsers = "listUsers"
	InPing      = "ping"
	InAI        = "ai"
)

// Outbound message types.
const (
	OutChat      = "chat"
	OutSystem    = "system"
	OutAckName   = "ackName"
	OutStatus    = "status"
	OutListUsers = "listUsers"
	OutError     = "error"
	OutPong      = "pong"
	OutAI        = "ai"
)

// ErrUnknownType is returned by DecodeIncoming for a well-formed JSON
// object whose type tag is missing or not a recognized operation.
var ErrUnknownType = errors.New("unknown message type")

// Incoming is the decoded client envelope. Only the fields belonging to
// the tagged operation are meaningful.
type Incoming struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Name   string  `json:"name,omitempty"`
	Token  *string `json:"token,omitempty"`
	Prompt string  `json:"prompt,omitempty"`
}

// DecodeIncoming parses a text frame into an Incoming envelope. Unknown
// type tags fail closed.
func DecodeIncoming(data []byte) (Incoming, error) {
	var in Incoming
	if err := json.Unmarshal(data, &in); err != nil {
		return Incoming{}, err
	}
	switch in.Type {
	case InChat, InSetName, InStatus, InListUsers, InPing, InAI:
		return in, nil
	default:
		return Incoming{}, ErrUnknownType
	}
}

// Chat is a broadcast chat message.
type Chat struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// System is a broadcast presence or housekeeping notice.
type System struct {
	Type string `json:"type"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// AckName confirms the sender's current display name.
type AckName struct {
	Type string `json:"type"`
	Name string `json:"name"`
	At   int64  `json:"at"`
}

// Status is the unicast reply to a status request.
type Status struct {
	Type              string  `json:"type"`
	Version           string  `json:"version"`
	GoVersion         string  `json:"goVersion"`
	OS                string  `json:"os"`
	CPUCores          int     `json:"cpuCores"`
	UptimeSeconds     int64   `json:"uptimeSeconds"`
	UserCount         int     `json:"userCount"`
	PeakUsers         uint64  `json:"peakUsers"`
	ConnectionsTotal  uint64  `json:"connectionsTotal"`
	MessagesSent      uint64  `json:"messagesSent"`
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	MemoryMB          float64 `json:"memoryMb"`
	AIEnabled         bool    `json:"aiEnabled"`
	AIModel           string  `json:"aiModel,omitempty"`
}

// UserInfo describes one connected user in a listUsers reply.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// ListUsers is the unicast registry snapshot.
type ListUsers struct {
	Type  string     `json:"type"`
	Users []UserInfo `json:"users"`
}

// Error carries a rejection back to the requester only.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Pong echoes a ping token with the server's clock.
type Pong struct {
	Type  string  `json:"type"`
	Token *string `json:"token,omitempty"`
	At    int64   `json:"at"`
}

// AIAnswer is the broadcast result of a completed AI query.
type AIAnswer struct {
	Type       string   `json:"type"`
	From       string   `json:"from"`
	Prompt     string   `json:"prompt"`
	Response   string   `json:"response"`
	ResponseMS int64    `json:"responseMs"`
	Tokens     *int     `json:"tokens,omitempty"`
	Cost       *float64 `json:"cost,omitempty"`
	At         int64    `json:"at"`
}

// NowMillis is the timestamp format used in every envelope: Unix
// milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

func NewChat(from, text string) Chat {
	return Chat{Type: OutChat, From: from, Text: text, At: NowMillis()}
}

func NewSystem(text string) System {
	return System{Type: OutSystem, Text: text, At: NowMillis()}
}

func NewAckName(name string) AckName {
	return AckName{Type: OutAckName, Name: name, At: NowMillis()}
}

func NewError(message string) Error {
	return Error{Type: OutError, Message: message}
}

func NewPong(token *string) Pong {
	return Pong{Type: OutPong, Token: token, At: NowMillis()}
}
