// Package hasuratest runs an in-process stand-in for a Hasura GraphQL
// endpoint. Root fields are answered by registered resolvers; arguments are
// resolved against the request variables so tests can assert on what the
// compiler sent. Subscriptions are served over graphql-ws.
package hasuratest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"golang.org/x/net/websocket"

	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
)

// Path is the GraphQL endpoint path.
const Path = "/v1/graphql"

// Resolver answers one root field. args holds the field arguments with
// variables substituted.
type Resolver func(args map[string]any) (any, error)

// Stream, returned by a resolver of a subscription root field, is sent as
// one data message per element.
type Stream []any

// Request is a recorded request.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Header        http.Header
	// Args maps every root response key to its resolved arguments.
	Args map[string]map[string]any
}

// Server is a fake Hasura endpoint.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	resolvers map[string]Resolver
	requests  []Request
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{resolvers: map[string]Resolver{}}
	ws := websocket.Server{Handler: s.serveSubscription}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != Path {
			http.NotFound(w, r)
			return
		}
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		s.serveHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Handle registers fn for the root field name (not the alias).
func (s *Server) Handle(field string, fn Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[field] = fn
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

// Connection returns a default connection pointing at s.
func (s *Server) Connection() connections.Connection {
	return connections.Connection{Name: connections.Default, URL: s.URL + Path}
}

type payload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type result struct {
	Data   map[string]any `json:"data"`
	Errors []gqlError     `json:"errors,omitempty"`
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, _ := s.execute(p, r.Header)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// execute resolves every root field. Stream results are returned as-is in
// the second value, keyed by response key.
func (s *Server) execute(p payload, header http.Header) (result, map[string]Stream) {
	analysis, err := gqlrequest.Analyze(p.Query, p.OperationName)
	if err != nil {
		s.record(Request{Query: p.Query, OperationName: p.OperationName, Variables: p.Variables, Header: header})
		return result{Errors: []gqlError{{
			Message:    err.Error(),
			Extensions: map[string]any{"code": "validation-failed"},
		}}}, nil
	}

	req := Request{
		Query:         p.Query,
		OperationName: p.OperationName,
		Variables:     p.Variables,
		Header:        header,
		Args:          map[string]map[string]any{},
	}
	res := result{Data: map[string]any{}}
	streams := map[string]Stream{}
	for _, sel := range analysis.Operation.SelectionSet.Selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		key := field.Name.Value
		if field.Alias != nil && field.Alias.Value != "" {
			key = field.Alias.Value
		}
		args := map[string]any{}
		for _, arg := range field.Arguments {
			args[arg.Name.Value] = valueOf(arg.Value, p.Variables)
		}
		req.Args[key] = args

		s.mu.Lock()
		fn, ok := s.resolvers[field.Name.Value]
		s.mu.Unlock()
		if !ok {
			res.Data[key] = nil
			res.Errors = append(res.Errors, gqlError{
				Message:    fmt.Sprintf("field %q not found in type: 'query_root'", field.Name.Value),
				Path:       []any{key},
				Extensions: map[string]any{"code": "validation-failed"},
			})
			continue
		}
		value, err := fn(args)
		if err != nil {
			res.Data[key] = nil
			res.Errors = append(res.Errors, gqlError{Message: err.Error(), Path: []any{key}})
			continue
		}
		if stream, ok := value.(Stream); ok {
			streams[key] = stream
			continue
		}
		res.Data[key] = value
	}
	s.record(req)
	return res, streams
}

func (s *Server) record(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) serveSubscription(conn *websocket.Conn) {
	var header http.Header
	for {
		var msg wsMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}
		switch msg.Type {
		case "connection_init":
			var init struct {
				Headers map[string]string `json:"headers"`
			}
			_ = json.Unmarshal(msg.Payload, &init)
			header = http.Header{}
			for k, v := range init.Headers {
				header.Set(k, v)
			}
			_ = websocket.JSON.Send(conn, wsMessage{Type: "connection_ack"})
			_ = websocket.JSON.Send(conn, wsMessage{Type: "ka"})
		case "start":
			var p payload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				_ = websocket.JSON.Send(conn, wsMessage{ID: msg.ID, Type: "error", Payload: mustJSON(gqlError{Message: err.Error()})})
				continue
			}
			s.stream(conn, msg.ID, p, header)
		case "stop", "connection_terminate":
			return
		}
	}
}

func (s *Server) stream(conn *websocket.Conn, id string, p payload, header http.Header) {
	res, streams := s.execute(p, header)
	if len(res.Errors) > 0 {
		_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: "data", Payload: mustJSON(res)})
		return
	}
	if len(streams) == 0 {
		_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: "data", Payload: mustJSON(res)})
		_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: "complete"})
		return
	}
	for key, stream := range streams {
		for _, item := range stream {
			data := result{Data: map[string]any{key: item}}
			if err := websocket.JSON.Send(conn, wsMessage{ID: id, Type: "data", Payload: mustJSON(data)}); err != nil {
				return
			}
		}
	}
	_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: "complete"})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func valueOf(v ast.Value, vars map[string]any) any {
	switch value := v.(type) {
	case *ast.Variable:
		return vars[value.Name.Value]
	case *ast.IntValue:
		n, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return value.Value
		}
		return float64(n)
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return value.Value
		}
		return f
	case *ast.StringValue:
		return value.Value
	case *ast.BooleanValue:
		return value.Value
	case *ast.EnumValue:
		return value.Value
	case *ast.ListValue:
		out := make([]any, len(value.Values))
		for i, item := range value.Values {
			out[i] = valueOf(item, vars)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]any, len(value.Fields))
		for _, f := range value.Fields {
			out[f.Name.Value] = valueOf(f.Value, vars)
		}
		return out
	}
	return nil
}
