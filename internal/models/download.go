package models

// JobStatus tracks a download job through its lifecycle.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobRequesting JobStatus = "requesting"
	JobPreparing  JobStatus = "preparing"
	JobStreaming  JobStatus = "streaming"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// DownloadItem is the terminal record of one download job.
type DownloadItem struct {
	RecordID  string    `json:"record_id"`
	ChannelID int       `json:"channel_id"`
	LocalPath string    `json:"local_path"`
	Size      int64     `json:"size"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
}

// ExportSummary accounts for every submitted segment exactly once:
// Succeeded + Failed + Skipped + NotAttempted == Total.
type ExportSummary struct {
	Host           string         `json:"host"`
	ChannelID      int            `json:"channel_id"`
	OutputDir      string         `json:"output_dir"`
	Items          []DownloadItem `json:"items"`
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	NotAttempted   int            `json:"not_attempted,omitempty"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	TotalSizeHuman string         `json:"total_size_human"`
	OperationTime  string         `json:"operation_time"`
	ExportDuration string         `json:"export_duration"`
}
