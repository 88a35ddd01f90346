// Package odootest runs an in-process stand-in for the Odoo XML-RPC
// endpoints (/xmlrpc/2/common and /xmlrpc/2/object) backed by flat rows, so
// the client, the Odoo store and the HTTP server can be tested end to end.
package odootest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Call records one execute_kw invocation.
type Call struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

// Server is a fake Odoo instance. Rows are stored the way search_read
// returns them: many2one as [id, name] pairs, x2many as id lists.
type Server struct {
	*httptest.Server

	DB       string
	Username string
	Password string
	UID      int64

	mu       sync.Mutex
	rows     map[string]map[int64]map[string]any
	fields   map[string]map[string]any
	calls    []Call
	logins   int
	rejectN  int
	expired  bool
	faultFor map[string]string
}

// New starts a fake server with credentials odoo/admin/admin and uid 2.
func New() *Server {
	s := &Server{
		DB:       "odoo",
		Username: "admin",
		Password: "admin",
		UID:      2,
		rows:     map[string]map[int64]map[string]any{},
		fields:   map[string]map[string]any{},
		faultFor: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/xmlrpc/2/common", s.handleCommon)
	mux.HandleFunc("/xmlrpc/2/object", s.handleObject)
	s.Server = httptest.NewServer(mux)
	return s
}

// Put stores a row of model; row["id"] must be an int64.
func (s *Server) Put(model string, row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[model] == nil {
		s.rows[model] = map[int64]map[string]any{}
	}
	s.rows[model][row["id"].(int64)] = row
}

// Delete removes a row, simulating a concurrent unlink.
func (s *Server) Delete(model string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[model], id)
}

// SetField declares a field for fields_get.
func (s *Server) SetField(model, name, ttype, relation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields[model] == nil {
		s.fields[model] = map[string]any{}
	}
	attrs := map[string]any{"type": ttype, "string": name}
	if relation != "" {
		attrs["relation"] = relation
	}
	s.fields[model][name] = attrs
}

// RejectSessions makes the next n execute_kw calls fail with an
// AccessDenied fault, as an expired session does.
func (s *Server) RejectSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectN = n
}

// ExpireSessions makes every execute_kw call fail with an AccessDenied
// fault until the next successful authenticate.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

// FailMethod makes every call of model method fault with message.
func (s *Server) FailMethod(model, method, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultFor[model+"."+method] = message
}

// Calls returns the execute_kw calls received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo counts calls of model method.
func (s *Server) CallsTo(model, method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Model == model && c.Method == method {
			n++
		}
	}
	return n
}

// Logins counts successful authenticate calls.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) handleCommon(w http.ResponseWriter, r *http.Request) {
	name, params, err := readCall(r.Body)
	if err != nil {
		writeFault(w, 1, err.Error())
		return
	}
	if name != "authenticate" || len(params) < 3 {
		writeFault(w, 1, "method does not exist: "+name)
		return
	}
	s.mu.Lock()
	ok := params[0] == s.DB && params[1] == s.Username && params[2] == s.Password
	if ok {
		s.logins++
		s.expired = false
	}
	s.mu.Unlock()
	if !ok {
		writeResult(w, false)
		return
	}
	writeResult(w, s.UID)
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	name, params, err := readCall(r.Body)
	if err != nil {
		writeFault(w, 1, err.Error())
		return
	}
	if name != "execute_kw" || len(params) < 5 {
		writeFault(w, 1, "method does not exist: "+name)
		return
	}
	call := Call{Model: fmt.Sprint(params[3]), Method: fmt.Sprint(params[4]), Kwargs: map[string]any{}}
	if len(params) > 5 {
		call.Args, _ = params[5].([]any)
	}
	if len(params) > 6 {
		if kw, ok := params[6].(map[string]any); ok {
			call.Kwargs = kw
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	if s.expired || s.rejectN > 0 {
		if !s.expired {
			s.rejectN--
		}
		s.mu.Unlock()
		writeFault(w, 3, "Access Denied")
		return
	}
	if msg, ok := s.faultFor[call.Model+"."+call.Method]; ok {
		s.mu.Unlock()
		writeFault(w, 1, msg)
		return
	}
	result, fault := s.dispatch(call)
	s.mu.Unlock()

	if fault != "" {
		writeFault(w, 2, fault)
		return
	}
	writeResult(w, result)
}

// dispatch runs with s.mu held.
func (s *Server) dispatch(call Call) (any, string) {
	table := s.rows[call.Model]
	switch call.Method {
	case "search", "search_read", "search_count":
		var domain []any
		if len(call.Args) > 0 {
			domain, _ = call.Args[0].([]any)
		} else {
			domain, _ = call.Kwargs["domain"].([]any)
		}
		ids := s.match(table, domain)
		if call.Method == "search_count" {
			return int64(len(ids)), ""
		}
		ids = page(ids, call.Kwargs)
		if call.Method == "search" {
			return ids, ""
		}
		return s.project(table, ids, stringList(call.Kwargs["fields"])), ""

	case "read":
		if len(call.Args) == 0 {
			return nil, "read() missing ids"
		}
		raw, _ := call.Args[0].([]any)
		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			id, _ := v.(int64)
			if _, ok := table[id]; !ok {
				return nil, fmt.Sprintf("Record does not exist or has been deleted. (Record: %s(%d,))", call.Model, id)
			}
			ids = append(ids, id)
		}
		var fields []string
		if len(call.Args) > 1 {
			fields = stringList(call.Args[1])
		}
		return s.project(table, ids, fields), ""

	case "fields_get":
		fields, ok := s.fields[call.Model]
		if !ok {
			return nil, "The model does not exist: " + call.Model
		}
		return fields, ""
	}
	return nil, "Object has no method " + call.Method
}

func (s *Server) match(table map[int64]map[string]any, domain []any) []int64 {
	ids := make([]int64, 0, len(table))
	for id, row := range table {
		if matches(row, domain) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// matches ANDs every [field, op, value] condition; operators are ignored.
func matches(row map[string]any, domain []any) bool {
	for _, item := range domain {
		cond, ok := item.([]any)
		if !ok || len(cond) != 3 {
			continue
		}
		field, _ := cond[0].(string)
		op, _ := cond[1].(string)
		got := row[field]
		if pair, ok := got.([]any); ok && len(pair) == 2 {
			got = pair[0]
		}
		switch op {
		case "=":
			if fmt.Sprint(got) != fmt.Sprint(cond[2]) {
				return false
			}
		case "!=":
			if fmt.Sprint(got) == fmt.Sprint(cond[2]) {
				return false
			}
		case "in":
			list, _ := cond[2].([]any)
			found := false
			for _, v := range list {
				if fmt.Sprint(v) == fmt.Sprint(got) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "ilike":
			if !strings.Contains(strings.ToLower(fmt.Sprint(got)), strings.ToLower(fmt.Sprint(cond[2]))) {
				return false
			}
		}
	}
	return true
}

func page(ids []int64, kwargs map[string]any) []int64 {
	offset, _ := kwargs["offset"].(int64)
	if offset > int64(len(ids)) {
		offset = int64(len(ids))
	}
	ids = ids[offset:]
	if limit, ok := kwargs["limit"].(int64); ok && limit > 0 && limit < int64(len(ids)) {
		ids = ids[:limit]
	}
	return ids
}

func (s *Server) project(table map[int64]map[string]any, ids []int64, fields []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		row := table[id]
		if len(fields) == 0 {
			out = append(out, row)
			continue
		}
		picked := map[string]any{"id": id}
		for _, f := range fields {
			if v, ok := row[f]; ok {
				picked[f] = v
			} else {
				picked[f] = false
			}
		}
		out = append(out, picked)
	}
	return out
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func readCall(body io.Reader) (string, []any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", nil, err
	}
	return decodeCall(data)
}
