package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

// ResourceAggregator keeps one resource per canonical key for the running task.
type ResourceAggregator struct {
	sessionID string
	taskID    uuid.UUID
	index     map[string]int
	items     []task.WorkflowResource
}

func NewResourceAggregator(sessionID string, taskID uuid.UUID) *ResourceAggregator {
	return &ResourceAggregator{
		sessionID: sessionID,
		taskID:    taskID,
		index:     make(map[string]int),
	}
}

// Upsert merges rs into the index and returns the entries that are new or changed. The first
// writer keeps the id and step id; title, description, data and timestamp are refreshed.
// Each key appears at most once in the result.
func (a *ResourceAggregator) Upsert(rs []task.WorkflowResource) []task.WorkflowResource {
	var changed []task.WorkflowResource
	pos := make(map[string]int)
	for _, r := range rs {
		key := CanonicalKey(r)
		if key == "" {
			continue
		}
		r.DedupKey = key
		r.SessionID = a.sessionID
		r.TaskID = a.taskID
		r.ID = ResourceID(a.sessionID, key)

		i, ok := a.index[key]
		if !ok {
			a.index[key] = len(a.items)
			a.items = append(a.items, r)
			pos[key] = len(changed)
			changed = append(changed, r)
			continue
		}
		cur := a.items[i]
		if cur.Title == r.Title && cur.Description == r.Description && bytes.Equal(cur.Data, r.Data) {
			continue
		}
		cur.Title = r.Title
		cur.Description = r.Description
		cur.Data = r.Data
		if r.Timestamp.After(cur.Timestamp) {
			cur.Timestamp = r.Timestamp
		}
		a.items[i] = cur
		if p, ok := pos[key]; ok {
			changed[p] = cur
			continue
		}
		pos[key] = len(changed)
		changed = append(changed, cur)
	}
	return changed
}

func (a *ResourceAggregator) Resources() []task.WorkflowResource {
	out := make([]task.WorkflowResource, len(a.items))
	copy(out, a.items)
	return out
}

func (a *ResourceAggregator) Len() int { return len(a.items) }

// ResourceID is stable for a (session, key) pair so repeated writes hit the same row.
func ResourceID(sessionID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("taskstream:"+sessionID+"|"+key))
}

// CanonicalKey builds the dedup key "<type>:<locator>" from a resource's shape.
func CanonicalKey(r task.WorkflowResource) string {
	data := map[string]any{}
	if len(r.Data) > 0 {
		_ = json.Unmarshal(r.Data, &data)
	}
	str := func(k string) string {
		if v, ok := data[k].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	var locator string
	switch r.Type {
	case task.ResourceWeb:
		locator = NormalizeURL(str("url"))
	case task.ResourceAPI:
		locator = NormalizeURL(str("endpoint"))
	case task.ResourceDatabase:
		locator = strings.ToLower(str("name"))
	case task.ResourceFile:
		locator = str("locator")
		if looksLikeURL(locator) {
			locator = NormalizeURL(locator)
		}
	case task.ResourceChart, task.ResourceGeneral:
		locator = strings.TrimSpace(r.StepID)
		if rt := str("resource_type"); rt != "" && locator != "" {
			locator += "/" + strings.ToLower(rt)
		}
	default:
		return ""
	}
	if locator == "" {
		locator = strings.ToLower(strings.TrimSpace(r.Title))
	}
	if locator == "" {
		return ""
	}
	return string(r.Type) + ":" + locator
}

// NormalizeURL lowercases scheme and host, drops the fragment and trailing slashes.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "http://") || strings.HasPrefix(strings.ToLower(s), "https://")
}

// SynthesizeResources derives resources from one progress chunk.
func SynthesizeResources(c task.StreamChunk, stepID string, now time.Time) []task.WorkflowResource {
	if !c.HasResources() {
		return nil
	}
	ts := now.UTC()
	if c.Timestamp != nil {
		ts = c.Timestamp.UTC()
	}
	desc := strings.TrimSpace(c.Content)
	mk := func(typ task.ResourceType, title string, data map[string]any) task.WorkflowResource {
		return task.WorkflowResource{
			Type:        typ,
			Title:       title,
			Description: desc,
			Data:        jsonData(data),
			StepID:      stepID,
			Timestamp:   ts,
		}
	}

	var out []task.WorkflowResource
	for _, raw := range c.URLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		out = append(out, mk(task.ResourceWeb, urlTitle(raw), map[string]any{"url": raw}))
	}

	for _, f := range c.Files {
		loc := f.Locator()
		if loc == "" {
			continue
		}
		title := strings.TrimSpace(f.Name)
		if title == "" {
			title = path.Base(strings.TrimRight(loc, "/"))
		}
		data := map[string]any{"locator": loc}
		putIf(data, "name", f.Name)
		putIf(data, "url", f.URL)
		putIf(data, "download_url", f.DownloadURL)
		putIf(data, "path", f.Path)
		putIf(data, "mime_type", f.MimeType)
		if f.Size > 0 {
			data["size"] = f.Size
		}
		out = append(out, mk(task.ResourceFile, title, data))
	}

	if d := c.ExecutionDetails; len(d) > 0 {
		if endpoint, method, ok := apiShape(d); ok {
			data := copyMap(d)
			data["endpoint"] = endpoint
			if method != "" {
				data["method"] = method
			}
			title := endpoint
			if method != "" {
				title = method + " " + endpoint
			}
			out = append(out, mk(task.ResourceAPI, title, data))
		}
		if name, ok := databaseShape(d); ok {
			data := copyMap(d)
			data["name"] = name
			out = append(out, mk(task.ResourceDatabase, name, data))
		}
	}

	if rt := strings.ToLower(strings.TrimSpace(c.ResourceType)); rt != "" && len(c.Results) > 0 {
		typ := task.ResourceGeneral
		if rt == string(task.ResourceChart) {
			typ = task.ResourceChart
		}
		title := desc
		if title == "" {
			title = fmt.Sprintf("%s results (step %d)", rt, c.Step)
		}
		out = append(out, mk(typ, title, map[string]any{"resource_type": rt, "results": c.Results}))
	}
	return out
}

func apiShape(d map[string]any) (endpoint, method string, ok bool) {
	method = strings.ToUpper(stringField(d, "method", "http_method"))
	if ep := stringField(d, "endpoint", "api_endpoint"); ep != "" {
		return ep, method, true
	}
	if u := stringField(d, "url"); u != "" && method != "" {
		return u, method, true
	}
	return "", "", false
}

func databaseShape(d map[string]any) (string, bool) {
	if name := stringField(d, "database", "db_name", "table"); name != "" {
		return name, true
	}
	if q := stringField(d, "query"); q != "" {
		return q, true
	}
	return "", false
}

func stringField(d map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := d[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func urlTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if p := strings.Trim(u.Path, "/"); p != "" {
		return host + "/" + p
	}
	return host
}

func putIf(m map[string]any, k, v string) {
	if v = strings.TrimSpace(v); v != "" {
		m[k] = v
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func jsonData(m map[string]any) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
