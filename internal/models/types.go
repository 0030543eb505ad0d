package models

import (
	"fmt"
	"time"
)

// Channel is one camera input on the NVR.
type Channel struct {
	ID      int    `json:"channel_id"`
	Name    string `json:"channel_name"`
	Enabled bool   `json:"enabled"`
	Motion  bool   `json:"motion_capable,omitempty"`
	Alarm   bool   `json:"alarm_capable,omitempty"`
}

// Recording is one recorded segment as reported by a search. The ID is an
// opaque device identifier used to request the binary stream.
type Recording struct {
	ID        string     `json:"record_id"`
	ChannelID int        `json:"channel_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	SizeBytes int64      `json:"size_bytes,omitempty"`
	Type      RecordType `json:"record_type"`
	FilePath  string     `json:"file_path,omitempty"`
}

func (r Recording) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// TimeRange is a normalized search window with Start <= End.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RecordType classifies a recording: continuous, motion-triggered,
// alarm-triggered, or all (no filter).
type RecordType string

const (
	RecordAll        RecordType = "all"
	RecordContinuous RecordType = "continuous"
	RecordMotion     RecordType = "motion"
	RecordAlarm      RecordType = "alarm"
)

// ParseRecordType validates a user-supplied type filter.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(s) {
	case RecordAll, RecordContinuous, RecordMotion, RecordAlarm:
		return RecordType(s), nil
	}
	return "", fmt.Errorf("invalid recording type %q (expected all, continuous, motion or alarm)", s)
}

// DeviceCode maps the filter to the device's record_type vocabulary.
func (t RecordType) DeviceCode() int {
	switch t {
	case RecordContinuous:
		return 1
	case RecordMotion:
		return 2
	case RecordAlarm:
		return 4
	default:
		return 0
	}
}

// RecordTypeFromCode maps a device record_type code back to a RecordType.
func RecordTypeFromCode(code int) RecordType {
	switch code {
	case 1:
		return RecordContinuous
	case 2:
		return RecordMotion
	case 4:
		return RecordAlarm
	default:
		return RecordAll
	}
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}

type ChannelListResult struct {
	Host     string    `json:"host"`
	Channels []Channel `json:"channels"`
	Total    int       `json:"total"`
}

type SearchResult struct {
	Host           string      `json:"host"`
	ChannelID      int         `json:"channel_id"`
	Type           RecordType  `json:"record_type"`
	TimeRange      TimeRange   `json:"time_range"`
	Recordings     []Recording `json:"recordings"`
	Total          int         `json:"total"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	TotalSizeHuman string      `json:"total_size_human"`
	TotalDuration  string      `json:"total_duration"`
}
