package nvr

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"nvrexport/internal/models"
)

// Client issues channel and recording queries over one authenticated session.
type Client struct {
	session *Session
	log     zerolog.Logger
}

func NewClient(session *Session, log zerolog.Logger) *Client {
	return &Client{session: session, log: log}
}

// Session exposes the underlying session for lifecycle management.
func (c *Client) Session() *Session { return c.session }

type channelListResult struct {
	ChannelList []channelEntry `json:"channel_list"`
}

type channelEntry struct {
	ChannelID   int    `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Status      string `json:"status"`
	Motion      bool   `json:"motion_detect_support"`
	Alarm       bool   `json:"alarm_support"`
}

// ListChannels returns the channels configured on the device, sorted by id.
func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var result channelListResult
	if err := c.session.do(ctx, "GET", "/openapi/channels", nil, &result); err != nil {
		return nil, err
	}

	channels := make([]models.Channel, 0, len(result.ChannelList))
	for _, entry := range result.ChannelList {
		name := entry.ChannelName
		if name == "" {
			name = fmt.Sprintf("Channel %d", entry.ChannelID)
		}
		channels = append(channels, models.Channel{
			ID:      entry.ChannelID,
			Name:    name,
			Enabled: entry.Status != "off",
			Motion:  entry.Motion,
			Alarm:   entry.Alarm,
		})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	c.log.Debug().Int("count", len(channels)).Msg("channels listed")
	return channels, nil
}

type searchRequest struct {
	ChannelID  int    `json:"channel_id"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
	RecordType int    `json:"record_type"`
	PageToken  string `json:"page_token,omitempty"`
}

type searchResult struct {
	RecordList []recordEntry `json:"record_list"`
	NextToken  string        `json:"next_token"`
}

type recordEntry struct {
	RecordID   string          `json:"record_id"`
	StartTime  json.RawMessage `json:"start_time"`
	EndTime    json.RawMessage `json:"end_time"`
	Size       int64           `json:"size"`
	RecordType int             `json:"record_type"`
	FilePath   string          `json:"file_path"`
}

// SearchRecordings lists recorded segments on one channel within a time
// range, filtered by recording type. The device may paginate; pages are
// followed via the continuation token until exhausted. Results are
// deduplicated by record id and returned in chronological order.
func (c *Client) SearchRecordings(ctx context.Context, channelID int, tr models.TimeRange, filter models.RecordType) ([]models.Recording, error) {
	if channelID <= 0 {
		return nil, validationErrorf("search recordings", "invalid channel id %d", channelID)
	}
	if err := ValidateTimeRange(tr); err != nil {
		return nil, err
	}

	var (
		recordings []models.Recording
		seen       = map[string]bool{}
		token      string
	)
	for page := 0; ; page++ {
		req := searchRequest{
			ChannelID:  channelID,
			StartTime:  tr.Start.Unix(),
			EndTime:    tr.End.Unix(),
			RecordType: filter.DeviceCode(),
			PageToken:  token,
		}
		var result searchResult
		if err := c.session.do(ctx, "POST", "/openapi/playback/search", req, &result); err != nil {
			return nil, err
		}
		c.log.Debug().Int("page", page).Int("count", len(result.RecordList)).Msg("search page")

		for _, entry := range result.RecordList {
			if entry.RecordID == "" || seen[entry.RecordID] {
				continue
			}
			seen[entry.RecordID] = true
			recordings = append(recordings, models.Recording{
				ID:        entry.RecordID,
				ChannelID: channelID,
				StartTime: c.parseDeviceTime(entry.StartTime),
				EndTime:   c.parseDeviceTime(entry.EndTime),
				SizeBytes: entry.Size,
				Type:      models.RecordTypeFromCode(entry.RecordType),
				FilePath:  entry.FilePath,
			})
		}
		if result.NextToken == "" || len(result.RecordList) == 0 {
			break
		}
		token = result.NextToken
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].StartTime.Before(recordings[j].StartTime)
	})
	return recordings, nil
}

// Device firmware reports timestamps either as Unix seconds or as a
// formatted string; accept both. An unrecognized value is logged with its
// raw form and left as the zero time rather than failing the search page.
func (c *Client) parseDeviceTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var seconds int64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return time.Unix(seconds, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "20060102150405"} {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return t
			}
		}
	}
	c.log.Warn().Str("value", string(raw)).Msg("unrecognized timestamp in search result")
	return time.Time{}
}
