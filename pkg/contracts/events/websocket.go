// Package events defines the messages pushed to WebSocket clients.
package events

import "time"

// ProtocolVersion is sent in the connection message
const ProtocolVersion = "1.0"

// MessageType identifies the payload carried by a Message
type MessageType string

const (
	// TypeConnection is sent once to every newly registered client
	TypeConnection MessageType = "connection"
	// TypeOperationSnapshot carries the full state of one operation
	TypeOperationSnapshot MessageType = "operation:snapshot"
	// TypeDatasetTweaked is sent when a dataset has been tweaked on demand
	TypeDatasetTweaked MessageType = "dataset:tweaked"
	// TypeHeartbeat is sent by clients to keep the connection open
	TypeHeartbeat MessageType = "heartbeat"
)

// Message is the envelope of every server to client message
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Status    string      `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ConnectionData is the payload of a TypeConnection message
type ConnectionData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Version  string `json:"version"`
}

// DatasetTweakedData is the payload of a TypeDatasetTweaked message
type DatasetTweakedData struct {
	Dataset string   `json:"dataset"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Cached  bool     `json:"cached"`
}
