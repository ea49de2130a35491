package host

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/sqlproxy/types"
)

// DefaultFetchLimit is used when a fetch request carries no limit.
const DefaultFetchLimit = 100

// SQLHost serves the cursor protocol for one client connection. It keeps
// open cursors by id until the remote side closes them.
type SQLHost struct {
	client  client.Client
	logger  *zap.Logger
	cursors map[string]client.Cursor
	// mu serializes whole requests; the client is a single connection.
	mu sync.Mutex
}

// Option configures an SQLHost.
type Option func(*SQLHost)

// WithLogger sets the logger used for request events.
func WithLogger(logger *zap.Logger) Option {
	return func(h *SQLHost) { h.logger = logger }
}

// NewSQLHost creates a new SQLHost serving cl.
func NewSQLHost(cl client.Client, opts ...Option) *SQLHost {
	h := &SQLHost{
		client:  cl,
		logger:  zap.NewNop(),
		cursors: make(map[string]client.Cursor),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. Command failures are reported inside the payload; the returned
// error is only set when no response could be produced.
func (h *SQLHost) HandleRequest(ctx context.Context, requestPayload []byte) ([]byte, error) {
	var req types.Request
	dec := json.NewDecoder(bytes.NewReader(requestPayload))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return marshalErrorResponse(fmt.Errorf("failed to unmarshal request: %w", err))
	}
	args, err := types.DecodeArgs(req.Args)
	if err != nil {
		return marshalErrorResponse(fmt.Errorf("failed to decode args: %w", err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var responseData any
	var opErr error

	switch req.Command {
	case types.CommandExecute:
		responseData, opErr = h.handleExecute(ctx, &req, args)
	case types.CommandExec:
		responseData, opErr = h.handleExec(ctx, &req, args)
	case types.CommandFetch:
		responseData, opErr = h.handleFetch(&req)
	case types.CommandNextResultSet:
		responseData, opErr = h.handleNextResultSet(&req)
	case types.CommandCloseCursor:
		responseData, opErr = h.handleCloseCursor(&req)
	case types.CommandCloseConn:
		responseData, opErr = h.handleCloseConn()
	default:
		opErr = fmt.Errorf("unknown command: %s", req.Command)
	}

	if opErr != nil {
		h.logger.Debug("request failed", zap.String("command", req.Command), zap.Error(opErr))
		return marshalErrorResponse(opErr)
	}
	return json.Marshal(responseData)
}

// ServeHTTP accepts one request payload per POST.
func (h *SQLHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	resp, err := h.HandleRequest(r.Context(), payload)
	if err != nil {
		h.logger.Error("failed to build response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// OpenCursors returns the number of cursors the host is holding.
func (h *SQLHost) OpenCursors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cursors)
}

func marshalErrorResponse(opErr error) ([]byte, error) {
	resp := types.GeneralResponse{Status: types.Status{Error: opErr.Error()}}
	if errors.Is(opErr, client.ErrPrepare) {
		resp.Kind = types.KindPrepare
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error response for '%s': %w", opErr, err)
	}
	return payload, nil
}

func (h *SQLHost) handleExecute(ctx context.Context, req *types.Request, args []any) (types.CursorResponse, error) {
	cur, err := h.client.PrepareAndExecute(ctx, req.SQL, client.Options(req.Options), args...)
	if err != nil {
		return types.CursorResponse{}, fmt.Errorf("execute failed: %w", err)
	}
	if cur == nil {
		return types.CursorResponse{}, fmt.Errorf("execute failed: no cursor: %w", client.ErrPrepare)
	}

	cursorID := uuid.NewString()
	h.cursors[cursorID] = cur
	h.logger.Debug("opened cursor", zap.String("cursor", cursorID), zap.Int("sql_len", len(req.SQL)))
	return types.CursorResponse{CursorID: cursorID, Columns: cur.Columns()}, nil
}

func (h *SQLHost) handleExec(ctx context.Context, req *types.Request, args []any) (types.ExecResponse, error) {
	res, err := h.client.Exec(ctx, req.SQL, client.Options(req.Options), args...)
	if err != nil {
		return types.ExecResponse{}, fmt.Errorf("exec failed: %w", err)
	}
	return types.ExecResponse{LastInsertID: res.LastInsertID, RowsAffected: res.RowsAffected}, nil
}

func (h *SQLHost) handleFetch(req *types.Request) (types.CursorResponse, error) {
	cur, err := h.cursor(req.CursorID)
	if err != nil {
		return types.CursorResponse{}, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	resp := types.CursorResponse{CursorID: req.CursorID}
	for len(resp.Rows) < limit {
		row, err := cur.FetchRow()
		if err == io.EOF {
			resp.Done = true
			break
		}
		if err != nil {
			return types.CursorResponse{}, fmt.Errorf("fetch failed: %w", err)
		}
		resp.Rows = append(resp.Rows, processRowValues(row))
	}
	return resp, nil
}

func (h *SQLHost) handleNextResultSet(req *types.Request) (types.CursorResponse, error) {
	cur, err := h.cursor(req.CursorID)
	if err != nil {
		return types.CursorResponse{}, err
	}
	more, err := cur.NextResultSet()
	if err != nil {
		return types.CursorResponse{}, fmt.Errorf("next result set failed: %w", err)
	}
	resp := types.CursorResponse{CursorID: req.CursorID, More: more}
	if more {
		resp.Columns = cur.Columns()
	}
	return resp, nil
}

func (h *SQLHost) handleCloseCursor(req *types.Request) (types.GeneralResponse, error) {
	cur, exists := h.cursors[req.CursorID]
	if !exists {
		// Closing twice is not an error.
		return types.GeneralResponse{}, nil
	}
	delete(h.cursors, req.CursorID)
	if err := cur.Close(); err != nil {
		return types.GeneralResponse{}, fmt.Errorf("close cursor failed: %w", err)
	}
	return types.GeneralResponse{}, nil
}

// handleCloseConn drops every open cursor. The client itself stays open;
// its owner closes it.
func (h *SQLHost) handleCloseConn() (types.GeneralResponse, error) {
	for id, cur := range h.cursors {
		if err := cur.Close(); err != nil {
			h.logger.Debug("close cursor", zap.String("cursor", id), zap.Error(err))
		}
		delete(h.cursors, id)
	}
	return types.GeneralResponse{}, nil
}

func (h *SQLHost) cursor(id string) (client.Cursor, error) {
	cur, ok := h.cursors[id]
	if !ok {
		return nil, fmt.Errorf("cursor not found: %s", id)
	}
	return cur, nil
}

func processRowValues(rawRow []any) []any {
	processedRow := make([]any, len(rawRow))
	for i, val := range rawRow {
		switch v := val.(type) {
		case []byte:
			// Drivers hand back decimals and text as bytes too.
			if utf8.Valid(v) {
				processedRow[i] = string(v)
			} else {
				processedRow[i] = base64.StdEncoding.EncodeToString(v)
			}
		case time.Time:
			processedRow[i] = v.Format(time.RFC3339Nano)
		default:
			processedRow[i] = v
		}
	}
	return processedRow
}

