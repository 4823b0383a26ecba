package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dilution-ops-backend/internal/store"
)

// TaskLog is one row of the robot task history. The PHP API encodes numeric
// columns as numbers or as strings depending on the driver, so both are accepted.
type TaskLog struct {
	LogID                int64    `json:"log_id"`
	TaskName             string   `json:"task_name"`
	StartTime            string   `json:"start_time"`
	PiStatus             string   `json:"pi_status"`
	PiDurationSeconds    *float64 `json:"pi_duration_seconds"`
	UnityStatus          string   `json:"unity_status"`
	UnityDurationSeconds *float64 `json:"unity_duration_seconds"`
	Message              string   `json:"message"`
}

func (l *TaskLog) UnmarshalJSON(data []byte) error {
	var raw struct {
		LogID                json.RawMessage `json:"log_id"`
		TaskName             *string         `json:"task_name"`
		StartTime            *string         `json:"start_time"`
		PiStatus             *string         `json:"pi_status"`
		PiDurationSeconds    json.RawMessage `json:"pi_duration_seconds"`
		UnityStatus          *string         `json:"unity_status"`
		UnityDurationSeconds json.RawMessage `json:"unity_duration_seconds"`
		Message              *string         `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := flexNumber(raw.LogID)
	if err != nil {
		return fmt.Errorf("log_id: %w", err)
	}
	if id == nil {
		return fmt.Errorf("log_id is missing")
	}
	pi, err := flexNumber(raw.PiDurationSeconds)
	if err != nil {
		return fmt.Errorf("pi_duration_seconds: %w", err)
	}
	unity, err := flexNumber(raw.UnityDurationSeconds)
	if err != nil {
		return fmt.Errorf("unity_duration_seconds: %w", err)
	}

	*l = TaskLog{
		LogID:                int64(*id),
		TaskName:             deref(raw.TaskName),
		StartTime:            deref(raw.StartTime),
		PiStatus:             deref(raw.PiStatus),
		PiDurationSeconds:    pi,
		UnityStatus:          deref(raw.UnityStatus),
		UnityDurationSeconds: unity,
		Message:              deref(raw.Message),
	}
	return nil
}

// Observation converts the row for the task state ledger.
func (l TaskLog) Observation() store.TaskObservation {
	return store.TaskObservation{
		LogID:       l.LogID,
		TaskName:    l.TaskName,
		PiStatus:    strings.ToUpper(l.PiStatus),
		UnityStatus: strings.ToUpper(l.UnityStatus),
		Message:     l.Message,
	}
}

// flexNumber decodes null, a JSON number, or a quoted number. An empty string is null.
func flexNumber(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", s)
		}
		return &f, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Tone classifies a status for display.
type Tone string

const (
	ToneRunning  Tone = "running"
	TonePending  Tone = "pending"
	ToneFinished Tone = "finished"
	ToneFailed   Tone = "failed"
	ToneOther    Tone = "other"
)

// StatusTone maps a pi or unity status onto its display tone.
func StatusTone(status string) Tone {
	upper := strings.ToUpper(strings.TrimSpace(status))
	switch {
	case upper == "":
		return ToneOther
	case strings.Contains(upper, "RUNNING"):
		return ToneRunning
	case upper == "PENDING":
		return TonePending
	case upper == "FINISHED":
		return ToneFinished
	case upper == "ERROR", upper == "BROKEN":
		return ToneFailed
	default:
		return ToneOther
	}
}

// TaskID identifies a triggered task. It is whatever the robot API returned.
type TaskID string

// ReplyKind tags the shape of a trigger response.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	// ReplyObject is a JSON object carrying log_id.
	ReplyObject
	// ReplyScalar is a bare JSON number or string.
	ReplyScalar
	// ReplyText is an unquoted plain-text identifier.
	ReplyText
)

// TriggerReply is a decoded trigger response.
type TriggerReply struct {
	Kind ReplyKind
	ID   TaskID
	Raw  string
}

var bareID = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// DecodeTriggerReply tries the structured encodings first and falls back to plain text.
func DecodeTriggerReply(body []byte) TriggerReply {
	raw := strings.TrimSpace(string(body))
	reply := TriggerReply{Raw: raw}
	if raw == "" {
		return reply
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if id, ok := scalarID(obj["log_id"]); ok {
			reply.Kind, reply.ID = ReplyObject, id
		}
		return reply
	}

	if json.Valid([]byte(raw)) {
		if id, ok := scalarID(json.RawMessage(raw)); ok {
			reply.Kind, reply.ID = ReplyScalar, id
		}
		return reply
	}

	if bareID.MatchString(raw) {
		reply.Kind, reply.ID = ReplyText, TaskID(raw)
	}
	return reply
}

// TaskID returns the identifier, or an error carrying the raw response.
func (r TriggerReply) TaskID() (TaskID, error) {
	if r.Kind == ReplyUnknown || r.ID == "" {
		return "", fmt.Errorf("unrecognised trigger response: %s", r.Raw)
	}
	return r.ID, nil
}

func scalarID(raw json.RawMessage) (TaskID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return "", false
	}
	switch val := v.(type) {
	case json.Number:
		return TaskID(val.String()), true
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return "", false
		}
		return TaskID(val), true
	default:
		return "", false
	}
}
