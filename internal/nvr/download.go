package nvr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"nvrexport/internal/models"
	"nvrexport/pkg/utils"
)

const (
	// Suffix on a file still being written, so an interrupted export is
	// never mistaken for a finished one.
	partialSuffix = ".partial"

	copyChunkSize = 32 * 1024

	defaultJobRetries       = 2
	defaultProgressInterval = 200 * time.Millisecond
	defaultPrepareWait      = 2 * time.Minute
)

// ProgressUpdate is one per-job progress report. Total is 0 when the device
// does not report a size.
type ProgressUpdate struct {
	Recording models.Recording
	Status    models.JobStatus
	Bytes     int64
	Total     int64
}

// ProgressFunc receives progress updates at a bounded rate, never on every
// chunk plus one update per status transition.
type ProgressFunc func(ProgressUpdate)

// Downloader streams matched recordings to local files, one at a time.
type Downloader struct {
	client           *Client
	log              zerolog.Logger
	jobRetries       uint64
	progressInterval time.Duration
	prepareWait      time.Duration
}

// DownloaderOption adjusts pipeline behavior.
type DownloaderOption func(*Downloader)

// WithJobRetries bounds per-job retry attempts after the first try.
func WithJobRetries(n uint64) DownloaderOption {
	return func(d *Downloader) { d.jobRetries = n }
}

// WithProgressInterval bounds how often the progress callback fires.
func WithProgressInterval(interval time.Duration) DownloaderOption {
	return func(d *Downloader) { d.progressInterval = interval }
}

// WithPrepareWait bounds how long to poll an export prepare step.
func WithPrepareWait(wait time.Duration) DownloaderOption {
	return func(d *Downloader) { d.prepareWait = wait }
}

func NewDownloader(client *Client, log zerolog.Logger, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client:           client,
		log:              log,
		jobRetries:       defaultJobRetries,
		progressInterval: defaultProgressInterval,
		prepareWait:      defaultPrepareWait,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Filename derives a deterministic output name from channel, start time and
// type, so re-runs hit the same files and distinct segments never collide.
func Filename(rec models.Recording) string {
	return fmt.Sprintf("ch%d_%s-%s_%s.mp4",
		rec.ChannelID,
		rec.StartTime.Format("20060102_150405"),
		rec.EndTime.Format("150405"),
		rec.Type)
}

// Download fetches every recording into outputDir sequentially. One job's
// failure never aborts the batch; connect- or auth-level failures do, since
// nothing after them can succeed. The summary accounts for every submitted
// recording exactly once.
func (d *Downloader) Download(ctx context.Context, recordings []models.Recording, outputDir string, onProgress ProgressFunc) (*models.ExportSummary, error) {
	start := time.Now()
	summary := &models.ExportSummary{
		Host:          d.client.Session().Host(),
		OutputDir:     outputDir,
		Total:         len(recordings),
		OperationTime: start.Format(time.RFC3339),
	}
	if len(recordings) > 0 {
		summary.ChannelID = recordings[0].ChannelID
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return summary, validationErrorf("download", "cannot create output directory %s: %v", outputDir, err)
	}

	var fatal error
	for i, rec := range recordings {
		if err := ctx.Err(); err != nil {
			summary.NotAttempted = len(recordings) - i
			fatal = err
			break
		}
		if fatal != nil {
			summary.NotAttempted = len(recordings) - i
			break
		}

		item := d.downloadJob(ctx, rec, outputDir, onProgress)
		summary.Items = append(summary.Items, item)
		switch item.Status {
		case models.JobCompleted:
			summary.Succeeded++
			summary.TotalSizeBytes += item.Size
		case models.JobSkipped:
			summary.Skipped++
			summary.TotalSizeBytes += item.Size
		default:
			summary.Failed++
			// A dead connection or exhausted re-auth stops the batch.
			if item.ErrorKind == string(KindConnect) || item.ErrorKind == string(KindAuth) {
				fatal = fmt.Errorf("%s: %s", item.ErrorKind, item.Error)
			}
		}
	}

	summary.TotalSizeHuman = utils.FormatBytes(summary.TotalSizeBytes)
	summary.ExportDuration = time.Since(start).String()
	return summary, fatal
}

// downloadJob runs one recording through the job state machine with bounded
// retries and exponential backoff.
func (d *Downloader) downloadJob(ctx context.Context, rec models.Recording, outputDir string, onProgress ProgressFunc) models.DownloadItem {
	dest := filepath.Join(outputDir, Filename(rec))
	item := models.DownloadItem{
		RecordID:  rec.ID,
		ChannelID: rec.ChannelID,
		LocalPath: dest,
	}

	// Idempotent re-runs: a present, size-matching file is not fetched again.
	if info, err := os.Stat(dest); err == nil && rec.SizeBytes > 0 && info.Size() == rec.SizeBytes {
		d.log.Debug().Str("file", dest).Msg("already downloaded, skipping")
		item.Status = models.JobSkipped
		item.Size = info.Size()
		d.emit(onProgress, rec, models.JobSkipped, info.Size(), rec.SizeBytes)
		return item
	}

	d.emit(onProgress, rec, models.JobPending, 0, rec.SizeBytes)

	var written int64
	operation := func() error {
		var err error
		written, err = d.downloadOnce(ctx, rec, dest, onProgress)
		if err == nil {
			return nil
		}
		switch KindOf(err) {
		case KindAuth:
			// Mid-sequence authorization expiry: refresh once, then let
			// the retry loop run this job again. If the refresh itself
			// fails the error is permanent and ends the batch.
			d.log.Debug().Str("record", rec.ID).Msg("re-authenticating after authorization failure")
			d.client.Session().Invalidate()
			if lerr := d.client.Session().EnsureValid(ctx); lerr != nil {
				return backoff.Permanent(lerr)
			}
			return err
		case KindValidation, KindProtocol:
			return backoff.Permanent(err)
		}
		// Timeout, incomplete transfer and transient connect failures
		// are worth another attempt.
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.jobRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		item.Status = models.JobFailed
		item.Error = err.Error()
		// An interrupted job carries no kind; the batch stops on the
		// context check before the next job.
		item.ErrorKind = string(KindOf(err))
		d.log.Warn().Str("record", rec.ID).Str("kind", item.ErrorKind).Msg("download failed")
		d.emit(onProgress, rec, models.JobFailed, 0, rec.SizeBytes)
		return item
	}

	item.Status = models.JobCompleted
	item.Size = written
	d.emit(onProgress, rec, models.JobCompleted, written, rec.SizeBytes)
	return item
}

// downloadOnce performs one attempt: resolve a byte stream for the
// recording, write it to a partial file, then promote it on a clean finish.
func (d *Downloader) downloadOnce(ctx context.Context, rec models.Recording, dest string, onProgress ProgressFunc) (int64, error) {
	d.emit(onProgress, rec, models.JobRequesting, 0, rec.SizeBytes)

	resp, err := d.openStream(ctx, rec, onProgress)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = rec.SizeBytes
	}

	partial := dest + partialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return 0, newError(KindProtocol, "create file", d.client.Session().Host(),
			fmt.Errorf("create %s: %w", partial, err))
	}

	written, copyErr := d.copyStream(rec, out, resp.Body, total, onProgress)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(partial)
		return 0, copyErr
	}
	if closeErr != nil {
		os.Remove(partial)
		return 0, newError(KindIncompleteTransfer, "write file", d.client.Session().Host(), closeErr)
	}
	// A short stream means a truncated export; never keep it as a result.
	if total > 0 && written != total {
		os.Remove(partial)
		return 0, newError(KindIncompleteTransfer, "download", d.client.Session().Host(),
			fmt.Errorf("got %d of %d bytes for record %s", written, total, rec.ID))
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return 0, newError(KindIncompleteTransfer, "finalize file", d.client.Session().Host(), err)
	}
	return written, nil
}

func (d *Downloader) copyStream(rec models.Recording, out *os.File, in io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	var written int64
	lastEmit := time.Now()
	buf := make([]byte, copyChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, newError(KindIncompleteTransfer, "write file", d.client.Session().Host(), werr)
			}
			written += int64(n)
			if onProgress != nil && time.Since(lastEmit) >= d.progressInterval {
				lastEmit = time.Now()
				onProgress(ProgressUpdate{Recording: rec, Status: models.JobStreaming, Bytes: written, Total: total})
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, classifyTransport("download", d.client.Session().Host(), rerr)
		}
	}
}

type exportPrepareRequest struct {
	RecordID  string `json:"record_id"`
	ChannelID int    `json:"channel_id"`
}

type exportPrepareResult struct {
	ExportID string `json:"export_id"`
	Status   string `json:"status"`
}

// openStream resolves a byte stream for the recording. Records the device
// serves directly are fetched in one GET; otherwise an export is prepared
// and polled until ready before streaming.
func (d *Downloader) openStream(ctx context.Context, rec models.Recording, onProgress ProgressFunc) (*http.Response, error) {
	session := d.client.Session()
	if err := session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	if rec.FilePath != "" {
		query := url.Values{}
		query.Set("record_id", rec.ID)
		query.Set("channel_id", strconv.Itoa(rec.ChannelID))
		return session.stream(ctx, "/openapi/playback/download", query)
	}

	// Prepare-then-stream flow. A device that answers "ready" immediately
	// degrades this to a single extra round trip.
	var prep exportPrepareResult
	req := exportPrepareRequest{RecordID: rec.ID, ChannelID: rec.ChannelID}
	if err := session.do(ctx, "POST", "/openapi/playback/export", req, &prep); err != nil {
		return nil, err
	}

	if prep.Status != "ready" {
		d.emit(onProgress, rec, models.JobPreparing, 0, rec.SizeBytes)
		if err := d.waitReady(ctx, prep.ExportID); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("export_id", prep.ExportID)
	return session.stream(ctx, "/openapi/playback/export/download", query)
}

// waitReady polls the export status with backoff until the device reports
// ready, bounded by the configured prepare wait.
func (d *Downloader) waitReady(ctx context.Context, exportID string) error {
	session := d.client.Session()
	host := session.Host()

	poll := func() error {
		var status exportPrepareResult
		query := "/openapi/playback/export/status?export_id=" + url.QueryEscape(exportID)
		if err := session.do(ctx, "GET", query, nil, &status); err != nil {
			return backoff.Permanent(err)
		}
		switch status.Status {
		case "ready":
			return nil
		case "failed":
			return backoff.Permanent(newError(KindProtocol, "prepare export", host,
				fmt.Errorf("device reported export %s failed", exportID)))
		}
		return fmt.Errorf("export %s not ready", exportID)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = d.prepareWait
	if err := backoff.Retry(poll, backoff.WithContext(bo, ctx)); err != nil {
		if KindOf(err) != "" {
			return err
		}
		return newError(KindTimeout, "prepare export", host, err)
	}
	return nil
}

func (d *Downloader) emit(onProgress ProgressFunc, rec models.Recording, status models.JobStatus, bytes, total int64) {
	if onProgress == nil {
		return
	}
	onProgress(ProgressUpdate{Recording: rec, Status: status, Bytes: bytes, Total: total})
}
