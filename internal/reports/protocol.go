package reports

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeCacheReport      = "CACHE_REPORT"
	TypeGetCachedReports = "GET_CACHED_REPORTS"
	TypeClearCache       = "CLEAR_CACHE"
)

// Outbound (broadcast) message types.
const (
	TypeReportCached      = "REPORT_CACHED"
	TypeCachedReportsList = "CACHED_REPORTS_LIST"
	TypeCacheCleared      = "CACHE_CLEARED"
)

// UserID is a user identifier. Pages send it as either a JSON string or a
// bare number, so unmarshaling accepts both.
type UserID string

// UnmarshalJSON accepts "42" and 42 alike.
func (u *UserID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*u = UserID(n.String())
		return nil
	}
	return fmt.Errorf("invalid userId: %s", string(b))
}

// MarshalJSON emits the id as a string.
func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(u))
}

// String returns the id as a plain string.
func (u UserID) String() string { return string(u) }

// ReportData describes the artifacts of a freshly generated report. All
// fields are optional; absent artifacts are simply skipped.
type ReportData struct {
	PDFURL   string          `json:"pdfUrl,omitempty"`
	JSONData json.RawMessage `json:"jsonData,omitempty"`
	CardURLs []string        `json:"cardUrls,omitempty"`
}

// CacheReportRequest is the CACHE_REPORT payload.
type CacheReportRequest struct {
	UserID     UserID     `json:"userId"`
	ReportData ReportData `json:"reportData"`
}

// UserRequest is the payload of GET_CACHED_REPORTS and CLEAR_CACHE.
type UserRequest struct {
	UserID UserID `json:"userId"`
}

// ReportCached acknowledges a completed CACHE_REPORT operation.
type ReportCached struct {
	Type      string `json:"type"`
	UserID    UserID `json:"userId"`
	Timestamp int64  `json:"timestamp"` // ms epoch
}

// ReportInfo describes one cached report artifact.
type ReportInfo struct {
	URL      string `json:"url"`
	Kind     string `json:"type"`     // "pdf" or "json"
	CachedAt int64  `json:"cachedAt"` // ms epoch
}

// CachedReportsList answers GET_CACHED_REPORTS.
type CachedReportsList struct {
	Type    string       `json:"type"`
	UserID  UserID       `json:"userId"`
	Reports []ReportInfo `json:"reports"`
}

// CacheCleared answers CLEAR_CACHE.
type CacheCleared struct {
	Type        string   `json:"type"`
	UserID      UserID   `json:"userId"`
	DeletedURLs []string `json:"deletedUrls"`
}

// JSONKey returns the fixed per-user key the inline JSON snapshot is
// stored under.
func JSONKey(id UserID) string {
	return "/data/reports/user_" + id.String() + "_latest.json"
}

// userToken returns the delimited namespace token for a user. Matching
// requires the trailing delimiter (`_` or `.`) so user "1" never matches
// keys belonging to user "12".
func userToken(id UserID) string {
	return "user_" + id.String()
}

// inUserNamespace reports whether key belongs to the user's cache
// namespace: it contains `user_<id>` followed by a `_` or `.` delimiter.
func inUserNamespace(key string, id UserID) bool {
	token := userToken(id)
	rest := key
	offset := 0
	for {
		j := strings.Index(rest, token)
		if j < 0 {
			return false
		}
		next := offset + j + len(token)
		if next < len(key) && (key[next] == '_' || key[next] == '.') {
			return true
		}
		rest = rest[j+1:]
		offset += j + 1
	}
}

// isReportArtifact reports whether key names a listable report artifact
// (a PDF or JSON file).
func isReportArtifact(key string) bool {
	return strings.HasSuffix(key, ".pdf") || strings.HasSuffix(key, ".json")
}
