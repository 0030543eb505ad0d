package nvr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"
)

const (
	stubUser     = "admin"
	stubPassword = "secret"
)

// stubRecord is one recording the stub device reports and can serve.
type stubRecord struct {
	id        string
	start     int64
	end       int64
	typeCode  int
	filePath  string // non-empty enables the direct download path
	content   []byte
	sizeLie   int64         // when > 0, reported size differs from served bytes
	failNext  int           // times the download responds 500 before succeeding
	prepPolls int           // polls before the export reports ready
	stall     time.Duration // pause mid-stream, after the first byte
}

func (r *stubRecord) reportedSize() int64 {
	if r.sizeLie > 0 {
		return r.sizeLie
	}
	return int64(len(r.content))
}

// stubDevice speaks just enough of the OpenAPI dialect for the client:
// token login, channel list, paginated search and both download flows.
type stubDevice struct {
	t  *testing.T
	mu sync.Mutex

	tokenLifetime int
	loginCount    int
	currentToken  string
	revoked       bool // reject the current token until the next login

	channels []map[string]any
	records  []*stubRecord
	pageSize int

	searchCalls   int
	downloadCalls int

	server *httptest.Server
}

func newStubDevice(t *testing.T) *stubDevice {
	d := &stubDevice{
		t:             t,
		tokenLifetime: 3600,
		pageSize:      100,
		channels: []map[string]any{
			{"channel_id": 2, "channel_name": "Gate", "status": "on"},
			{"channel_id": 1, "channel_name": "Front Door", "status": "on", "motion_detect_support": true},
			{"channel_id": 3, "channel_name": "", "status": "off"},
		},
	}
	d.server = httptest.NewTLSServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.server.Close)
	return d
}

// params returns connection parameters pointed at the stub.
func (d *stubDevice) params(t *testing.T) ConnectionParams {
	u, err := url.Parse(d.server.URL)
	if err != nil {
		t.Fatalf("parse stub URL: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return ConnectionParams{
		Host:     u.Hostname(),
		Port:     port,
		Username: stubUser,
		Password: stubPassword,
	}
}

func (d *stubDevice) addRecord(r stubRecord) *stubRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := r
	d.records = append(d.records, &rec)
	return &rec
}

// revokeToken makes the device reject the current token until re-login,
// simulating a mid-sequence authorization expiry.
func (d *stubDevice) revokeToken() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked = true
}

func (d *stubDevice) logins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loginCount
}

func (d *stubDevice) searches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.searchCalls
}

func (d *stubDevice) downloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloadCalls
}

func writeEnvelope(w http.ResponseWriter, result any) {
	body := map[string]any{"error_code": 0}
	if result != nil {
		body["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (d *stubDevice) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/openapi/token" {
		d.handleLogin(w, r)
		return
	}
	if !d.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/openapi/channels":
		writeEnvelope(w, map[string]any{"channel_list": d.channels})
	case "/openapi/playback/search":
		d.handleSearch(w, r)
	case "/openapi/playback/download":
		d.handleDownload(w, r.URL.Query().Get("record_id"))
	case "/openapi/playback/export":
		d.handlePrepare(w, r)
	case "/openapi/playback/export/status":
		d.handlePrepareStatus(w, r.URL.Query().Get("export_id"))
	case "/openapi/playback/export/download":
		d.handleDownload(w, r.URL.Query().Get("export_id"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *stubDevice) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Username != stubUser || req.Password != stubPassword {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"error_code": -40401, "error_msg": "invalid credentials"})
		return
	}

	d.mu.Lock()
	d.loginCount++
	d.revoked = false
	d.currentToken = fmt.Sprintf("tok-%d", d.loginCount)
	token := d.currentToken
	lifetime := d.tokenLifetime
	d.mu.Unlock()

	writeEnvelope(w, map[string]any{"access_token": token, "timeout_seconds": lifetime})
}

func (d *stubDevice) authorized(r *http.Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.revoked && r.Header.Get("Authorization") == "Bearer "+d.currentToken
}

func (d *stubDevice) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID  int    `json:"channel_id"`
		StartTime  int64  `json:"start_time"`
		EndTime    int64  `json:"end_time"`
		RecordType int    `json:"record_type"`
		PageToken  string `json:"page_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.searchCalls++
	var matched []*stubRecord
	for _, rec := range d.records {
		if req.RecordType != 0 && rec.typeCode != req.RecordType {
			continue
		}
		if rec.end < req.StartTime || rec.start > req.EndTime {
			continue
		}
		matched = append(matched, rec)
	}
	pageSize := d.pageSize
	d.mu.Unlock()

	offset := 0
	if req.PageToken != "" {
		offset, _ = strconv.Atoi(req.PageToken)
	}

	var list []map[string]any
	next := ""
	for i := offset; i < len(matched) && i < offset+pageSize; i++ {
		rec := matched[i]
		list = append(list, map[string]any{
			"record_id":   rec.id,
			"start_time":  rec.start,
			"end_time":    rec.end,
			"size":        rec.reportedSize(),
			"record_type": rec.typeCode,
			"file_path":   rec.filePath,
		})
	}
	if offset+pageSize < len(matched) {
		next = strconv.Itoa(offset + pageSize)
		// Overlap one record into the next page so the client has to
		// deduplicate across page boundaries.
		if len(list) > 0 {
			next = strconv.Itoa(offset + pageSize - 1)
		}
	}

	writeEnvelope(w, map[string]any{"record_list": list, "next_token": next})
}

func (d *stubDevice) findRecord(id string) *stubRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range d.records {
		if rec.id == id {
			return rec
		}
	}
	return nil
}

func (d *stubDevice) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec := d.findRecord(req.RecordID)
	if rec == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"error_code": -40601, "error_msg": "no such record"})
		return
	}
	status := "ready"
	if rec.prepPolls > 0 {
		status = "preparing"
	}
	// Export ids map one-to-one to record ids in the stub.
	writeEnvelope(w, map[string]any{"export_id": rec.id, "status": status})
}

func (d *stubDevice) handlePrepareStatus(w http.ResponseWriter, exportID string) {
	rec := d.findRecord(exportID)
	if rec == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"error_code": -40601, "error_msg": "no such export"})
		return
	}
	d.mu.Lock()
	status := "ready"
	if rec.prepPolls > 0 {
		rec.prepPolls--
		status = "preparing"
	}
	d.mu.Unlock()
	writeEnvelope(w, map[string]any{"export_id": rec.id, "status": status})
}

func (d *stubDevice) handleDownload(w http.ResponseWriter, id string) {
	rec := d.findRecord(id)
	if rec == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"error_code": -40601, "error_msg": "no such record"})
		return
	}

	d.mu.Lock()
	d.downloadCalls++
	if rec.failNext > 0 {
		rec.failNext--
		d.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	d.mu.Unlock()

	w.Header().Set("Content-Type", "video/mp4")
	if rec.sizeLie > 0 {
		// Flush before writing so the response is chunked and the client
		// only learns the expected size from the search result.
		w.(http.Flusher).Flush()
	}
	if rec.stall > 0 {
		w.Write(rec.content[:1])
		w.(http.Flusher).Flush()
		time.Sleep(rec.stall)
		w.Write(rec.content[1:])
		return
	}
	w.Write(rec.content)
}

// timeAt builds a Unix timestamp on the stub's reference day.
func timeAt(hour, minute int) int64 {
	return time.Date(2024, 12, 28, hour, minute, 0, 0, time.Local).Unix()
}
