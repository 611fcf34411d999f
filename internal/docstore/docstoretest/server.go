// Package docstoretest provides an in-memory fake of the document REST API
// for tests. It understands point reads, runQuery with one equality filter,
// single-field ordering and limit, and masked or full PATCH writes.
package docstoretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Qzief/arufkuy-store/internal/docstore"
)

const ProjectID = "test-project"

type Write struct {
	Method string
	Path   string
	Mask   []string
}

type Server struct {
	*httptest.Server

	// Token, when set, must match the bearer token of every request.
	Token string
	// RejectOrderBy simulates a missing composite index.
	RejectOrderBy bool
	// Fail lets a test inject a status code for an operation ("GET", "QUERY", "UPDATE") and path.
	Fail func(op, path string) int

	mu     sync.Mutex
	docs   map[string]docstore.Document
	writes []Write
	clock  int64
}

func New() *Server {
	s := &Server{docs: map[string]docstore.Document{}, clock: 1_700_000_000}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// BaseURL is the value to pass to docstore.NewClient together with ProjectID.
func (s *Server) BaseURL() string { return s.URL + "/v1" }

func (s *Server) Client() *docstore.Client {
	return docstore.NewClient(s.BaseURL(), ProjectID, s.Server.Client())
}

func (s *Server) root() string {
	return "/v1/projects/" + ProjectID + "/databases/(default)/documents"
}

func (s *Server) name(path string) string {
	return "projects/" + ProjectID + "/databases/(default)/documents/" + path
}

// Put seeds a document from native values.
func (s *Server) Put(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	s.docs[collection+"/"+id] = docstore.Document{
		Name:       s.name(collection + "/" + id),
		Fields:     docstore.Fields(fields),
		CreateTime: now,
		UpdateTime: now,
	}
}

// Doc returns the stored document decoded to native values.
func (s *Server) Doc(collection, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection+"/"+id]
	if !ok {
		return nil, false
	}
	return d.Data(), true
}

func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// WritesTo counts writes whose path starts with collection.
func (s *Server) WritesTo(collection string) int {
	n := 0
	for _, w := range s.Writes() {
		if strings.HasPrefix(w.Path, collection+"/") {
			n++
		}
	}
	return n
}

func (s *Server) tick() time.Time {
	s.clock++
	return time.Unix(s.clock, 0).UTC()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED")
		return
	}
	root := s.root()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == root+":runQuery":
		s.query(w, r)
	case strings.HasPrefix(r.URL.Path, root+"/"):
		path := strings.TrimPrefix(r.URL.Path, root+"/")
		switch r.Method {
		case http.MethodGet:
			s.get(w, path)
		case http.MethodPatch:
			s.patch(w, r, path)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method")
		}
	default:
		writeError(w, http.StatusNotFound, "no route")
	}
}

func (s *Server) failed(w http.ResponseWriter, op, path string) bool {
	if s.Fail == nil {
		return false
	}
	if code := s.Fail(op, path); code != 0 {
		writeError(w, code, "injected failure")
		return true
	}
	return false
}

func (s *Server) get(w http.ResponseWriter, path string) {
	if s.failed(w, "GET", path) {
		return
	}
	s.mu.Lock()
	d, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type queryResult struct {
	Document *docstore.Document `json:"document,omitempty"`
	ReadTime string             `json:"readTime"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StructuredQuery docstore.StructuredQuery `json:"structuredQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := req.StructuredQuery
	if len(q.From) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one collection")
		return
	}
	coll := q.From[0].CollectionID
	if s.failed(w, "QUERY", coll) {
		return
	}
	if len(q.OrderBy) > 0 && s.RejectOrderBy {
		writeError(w, http.StatusBadRequest, "FAILED_PRECONDITION: The query requires an index")
		return
	}

	s.mu.Lock()
	var docs []docstore.Document
	for path, d := range s.docs {
		if !strings.HasPrefix(path, coll+"/") || strings.Contains(strings.TrimPrefix(path, coll+"/"), "/") {
			continue
		}
		if q.Where != nil && q.Where.FieldFilter != nil {
			f := q.Where.FieldFilter
			v, ok := d.Fields[f.Field.FieldPath]
			if !ok || !docstore.Equal(v, f.Value) {
				continue
			}
		}
		docs = append(docs, d)
	}
	s.mu.Unlock()

	// Unordered results come back in path order, which is arbitrary to callers.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	if len(q.OrderBy) > 0 {
		o := q.OrderBy[0]
		sort.SliceStable(docs, func(i, j int) bool {
			less := lessValue(docs[i].Fields[o.Field.FieldPath], docs[j].Fields[o.Field.FieldPath])
			if o.Direction == docstore.Descending {
				return lessValue(docs[j].Fields[o.Field.FieldPath], docs[i].Fields[o.Field.FieldPath])
			}
			return less
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	out := make([]queryResult, 0, len(docs)+1)
	readTime := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range docs {
		out = append(out, queryResult{Document: &docs[i], ReadTime: readTime})
	}
	if len(out) == 0 {
		out = append(out, queryResult{ReadTime: readTime})
	}
	writeJSON(w, http.StatusOK, out)
}

func lessValue(a, b docstore.Value) bool {
	switch {
	case a.Kind == docstore.KindTimestamp && b.Kind == docstore.KindTimestamp:
		return a.Timestamp.Before(b.Timestamp)
	case a.Kind == docstore.KindInteger && b.Kind == docstore.KindInteger:
		return a.Integer < b.Integer
	case a.Kind == docstore.KindString && b.Kind == docstore.KindString:
		return a.String < b.String
	default:
		return a.Kind < b.Kind
	}
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request, path string) {
	if s.failed(w, "UPDATE", path) {
		return
	}
	var req struct {
		Fields map[string]docstore.Value `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mask := r.URL.Query()["updateMask.fieldPaths"]

	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.docs[path]
	if pre := r.URL.Query().Get("currentDocument.updateTime"); pre != "" {
		want, err := time.Parse(time.RFC3339Nano, pre)
		if err != nil || !exists || !d.UpdateTime.Equal(want) {
			writeError(w, http.StatusBadRequest, "FAILED_PRECONDITION: stale updateTime")
			return
		}
	}

	now := s.tick()
	if !exists {
		d = docstore.Document{Name: s.name(path), Fields: map[string]docstore.Value{}, CreateTime: now}
	}
	if len(mask) == 0 {
		d.Fields = req.Fields
	} else {
		if d.Fields == nil {
			d.Fields = map[string]docstore.Value{}
		}
		for _, f := range mask {
			if v, ok := req.Fields[f]; ok {
				d.Fields[f] = v
			} else {
				delete(d.Fields, f)
			}
		}
	}
	d.UpdateTime = now
	s.docs[path] = d
	s.writes = append(s.writes, Write{Method: r.Method, Path: path, Mask: mask})
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"code": code, "message": fmt.Sprint(msg)}})
}
