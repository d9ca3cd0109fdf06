// Command vectorbased runs a vectorbase database as a standalone
// process, exposing SQL execution over both a hand-rolled gRPC service
// and a small JSON/HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// valueToAny unwraps a storage.Value into the plain Go value its type
// carries, so the JSON encoder doesn't have to know about ValueType.
func valueToAny(v storage.Value) any {
	switch v.Type {
	case storage.TypeInt:
		return v.Int
	case storage.TypeFloat:
		return v.Float
	case storage.TypeText:
		return v.Text
	case storage.TypeBool:
		return v.Bool
	case storage.TypeEmbedding:
		return v.Vec
	default:
		return nil
	}
}

var (
	flagHTTP    = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC    = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagWALDir  = flag.String("wal", "", "WAL directory (empty disables durability)")
	flagSaveDir = flag.String("persist", "", "snapshot directory (empty disables GOB persistence)")
	flagVerbose = flag.Bool("v", false, "verbose logging")
)

// execRequest carries a connection id and the SQL text to run through
// Conn.Execute. An id of 0, or one the server does not know, opens a new
// connection; its id comes back in execResponse.ConnID.
type execRequest struct {
	ConnID int64  `json:"conn_id"`
	SQL    string `json:"sql"`
}

type execResponse struct {
	ConnID       int64  `json:"conn_id"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	Duration     string           `json:"duration"`
}

// jsonCodec lets the gRPC server exchange plain JSON instead of
// protobuf, so the service can be called with curl/any gRPC-JSON
// client without a generated stub.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)       { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }

// VectorbaseServer is the gRPC service surface: one Execute RPC that
// accepts arbitrary SQL (DDL, DML, SELECT, or BEGIN/COMMIT/ROLLBACK)
// and one connection-scoped session is implied by ConnID.
type VectorbaseServer interface {
	Execute(context.Context, *execRequest) (*execResponse, error)
}

func registerVectorbaseServer(s *grpc.Server, srv VectorbaseServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "vectorbase.Vectorbase",
		HandlerType: (*VectorbaseServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Execute", Handler: _Vectorbase_Execute_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "vectorbase",
	}, srv)
}

func _Vectorbase_Execute_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(execRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VectorbaseServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/vectorbase.Vectorbase/Execute"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VectorbaseServer).Execute(ctx, req.(*execRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server holds the process-wide Database plus one Conn per ConnID seen
// so far, so a client can BEGIN on one request and COMMIT on a later
// one.
type server struct {
	db *engine.Database

	mu    sync.Mutex
	conns map[int64]*engine.Conn
	next  int64
}

func newServer(db *engine.Database) *server {
	return &server{db: db, conns: make(map[int64]*engine.Conn)}
}

// connFor returns the Conn for id, creating one under a fresh id when
// id is 0 or not yet known.
func (s *server) connFor(id int64) (int64, *engine.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != 0 {
		if c, ok := s.conns[id]; ok {
			return id, c
		}
	}
	s.next++
	newID := s.next
	c := s.db.Connect()
	s.conns[newID] = c
	return newID, c
}

func (s *server) Execute(ctx context.Context, req *execRequest) (*execResponse, error) {
	start := time.Now()
	id, conn := s.connFor(req.ConnID)

	result, err := conn.Execute(ctx, req.SQL)
	if err != nil {
		return &execResponse{ConnID: id, Success: false, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}

	resp := &execResponse{ConnID: id, Success: true, Duration: time.Since(start).String()}
	switch v := result.(type) {
	case *engine.ResultSet:
		resp.Columns = v.Columns
		resp.Rows = make([]map[string]any, 0, len(v.Rows))
		for _, row := range v.Rows {
			m := make(map[string]any, len(v.Columns))
			for i, col := range v.Columns {
				if i < len(row) {
					m[col] = valueToAny(row[i])
				}
			}
			resp.Rows = append(resp.Rows, m)
		}
	case *engine.RowsAffected:
		resp.RowsAffected = v.Count
	}
	return resp, nil
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Execute(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":    true,
		"time":  time.Now().Format(time.RFC3339),
		"tables": len(s.db.Catalog.Tables()),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	flag.Parse()

	db := engine.NewDatabase(engine.DefaultConfig())
	if *flagWALDir != "" {
		if err := db.EnableWAL(*flagWALDir); err != nil {
			log.Fatalf("CRITICAL: WAL init failed: %v", err)
		}
	}
	if *flagSaveDir != "" {
		db.EnablePersistence(*flagSaveDir, true)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	srv := newServer(db)
	encoding.RegisterCodec(jsonCodec{})

	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			gs := grpc.NewServer()
			registerVectorbaseServer(gs, srv)
			log.Printf("gRPC listening on %s", *flagGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	if *flagHTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/execute", srv.handleExecute)
		mux.HandleFunc("/api/status", srv.handleStatus)
		log.Printf("HTTP listening on %s", *flagHTTP)
		if err := http.ListenAndServe(*flagHTTP, mux); err != nil {
			log.Printf("HTTP serve error: %v", err)
		}
	} else {
		select {}
	}
	if *flagVerbose {
		log.Println("vectorbased shutting down")
	}
}
