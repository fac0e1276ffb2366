// Package realtime carries change events and typing presence over websockets.
//
// Frames follow the Phoenix channel shape used by the hosted realtime service:
// a client joins a topic, then receives "postgres_changes" for the tables it
// asked for and "presence_sync" snapshots for the presence room it tracks in.
package realtime

import (
	"duo-lab/domain"
	"encoding/json"
	"fmt"
)

const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
	EventChanges   = "postgres_changes"
	EventTrack     = "presence_track"
	EventSync      = "presence_sync"

	heartbeatTopic = "phoenix"
	publicSchema   = "public"

	StatusOK    = "ok"
	StatusError = "error"
)

type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

func newFrame(topic, event, ref string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Topic: topic, Event: event, Payload: data, Ref: ref}, nil
}

type ChangeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type PresenceConfig struct {
	Key string `json:"key"`
}

type JoinConfig struct {
	PostgresChanges []ChangeFilter  `json:"postgres_changes,omitempty"`
	Presence        *PresenceConfig `json:"presence,omitempty"`
}

type JoinPayload struct {
	Config JoinConfig `json:"config"`
}

type Reply struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
}

type ChangeData struct {
	Table     domain.Table      `json:"table"`
	Schema    string            `json:"schema"`
	Type      domain.ChangeType `json:"type"`
	Record    domain.Row        `json:"record,omitempty"`
	OldRecord domain.Row        `json:"old_record,omitempty"`
}

type ChangePayload struct {
	Data ChangeData `json:"data"`
}

func changePayload(evt domain.ChangeEvent) ChangePayload {
	return ChangePayload{Data: ChangeData{
		Table:     evt.Table,
		Schema:    publicSchema,
		Type:      evt.Type,
		Record:    evt.Record,
		OldRecord: evt.OldRecord,
	}}
}

func (d ChangeData) event() domain.ChangeEvent {
	return domain.ChangeEvent{Table: d.Table, Type: d.Type, Record: d.Record, OldRecord: d.OldRecord}
}
