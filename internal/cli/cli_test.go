package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "asyncops/pkg/contracts/api/v1"
	"asyncops/pkg/contracts/events"
)

var started = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func snapshot(id, status string, progress int) events.OperationSnapshot {
	return events.OperationSnapshot{
		ID:          id,
		Status:      status,
		Progress:    progress,
		Description: "import " + id,
		StartTime:   started,
	}
}

func wsMessage(t *testing.T, msgType events.MessageType, data any) events.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Message{Type: msgType, Data: raw, Timestamp: started}
}

// fakeDaemon serves a fixed set of operations and a scripted websocket stream
func fakeDaemon(t *testing.T, stream []events.Message) *httptest.Server {
	t.Helper()
	ops := map[string]events.OperationSnapshot{
		"op-1": snapshot("op-1", "running", 40),
		"op-2": snapshot("op-2", "completed", 100),
	}

	r := chi.NewRouter()
	r.Get("/api/operations", func(w http.ResponseWriter, r *http.Request) {
		list := api.OperationList{Operations: []events.OperationSnapshot{}}
		for _, id := range []string{"op-1", "op-2"} {
			op := ops[id]
			if s := r.URL.Query().Get("status"); s != "" && op.Status != s {
				continue
			}
			list.Operations = append(list.Operations, op)
		}
		list.Count = len(list.Operations)
		render.JSON(w, r, list)
	})
	r.Get("/api/operations/{id}", func(w http.ResponseWriter, r *http.Request) {
		op, ok := ops[chi.URLParam(r, "id")]
		if !ok {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"type":"/errors/operation/not-found","title":"Not Found","status":404,"detail":"operation nope not found"}`))
			return
		}
		render.JSON(w, r, op)
	})
	r.Post("/api/operations/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "op-2" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"type":"/errors/operation/finished","title":"Conflict","status":409,"detail":"operation op-2 already completed"}`))
			return
		}
		op := ops[id]
		op.Status = "cancelled"
		render.JSON(w, r, op)
	})

	upgrader := websocket.Upgrader{}
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range stream {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// wait for the client to go away
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if server != "" {
		args = append([]string{"--server", server}, args...)
	}
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	srv := fakeDaemon(t, nil)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "table",
			args: []string{"list"},
			want: []string{"ID", "STATUS", "op-1", "running", "40%", "op-2", "completed", "import op-1"},
		},
		{
			name:    "status filter",
			args:    []string{"list", "--status", "running"},
			want:    []string{"op-1"},
			notWant: []string{"op-2"},
		},
		{
			name: "empty",
			args: []string{"list", "--status", "failed"},
			want: []string{"No operations."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, srv.URL, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestListCommand_JSON(t *testing.T) {
	srv := fakeDaemon(t, nil)

	out, err := run(t, srv.URL, "--json", "list")
	require.NoError(t, err)

	var list api.OperationList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "op-1", list.Operations[0].ID)
}

func TestGetCommand(t *testing.T) {
	srv := fakeDaemon(t, nil)

	out, err := run(t, srv.URL, "get", "op-1")
	require.NoError(t, err)
	assert.Contains(t, out, "ID:")
	assert.Contains(t, out, "op-1")
	assert.Contains(t, out, "40%")
	assert.Contains(t, out, "import op-1")
}

func TestGetCommand_NotFound(t *testing.T) {
	srv := fakeDaemon(t, nil)

	_, err := run(t, srv.URL, "get", "nope")
	require.Error(t, err)

	var problem *ProblemError
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "/errors/operation/not-found", problem.Type)
	assert.Contains(t, err.Error(), "operation nope not found")
}

func TestGetCommand_RequiresID(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "get")
	assert.Error(t, err)
}

func TestCancelCommand(t *testing.T) {
	srv := fakeDaemon(t, nil)

	out, err := run(t, srv.URL, "cancel", "op-1")
	require.NoError(t, err)
	assert.Equal(t, "Operation op-1 cancelled\n", out)

	_, err = run(t, srv.URL, "cancel", "op-2")
	var problem *ProblemError
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusConflict, problem.Status)
}

func TestWatchCommand(t *testing.T) {
	stream := []events.Message{
		wsMessage(t, events.MessageTypeConnection, events.ConnectionData{Status: "connected", ClientID: "c-1"}),
		wsMessage(t, events.MessageTypeOperationProgressStarted, events.ProgressStartedData{OperationID: "op-1", Description: "import"}),
		wsMessage(t, events.MessageTypeOperationUpdate, events.OperationUpdateData{OperationID: "op-2", Operation: snapshot("op-2", "running", 10)}),
		wsMessage(t, events.MessageTypeOperationUpdate, events.OperationUpdateData{OperationID: "op-1", Operation: snapshot("op-1", "running", 50)}),
		wsMessage(t, events.MessageTypeOperationComplete, events.OperationCompleteData{OperationID: "op-1", Operation: snapshot("op-1", "completed", 100)}),
		wsMessage(t, events.MessageTypeOperationUpdate, events.OperationUpdateData{OperationID: "op-3", Operation: snapshot("op-3", "running", 1)}),
	}

	t.Run("follows one operation until complete", func(t *testing.T) {
		srv := fakeDaemon(t, stream)

		out, err := run(t, srv.URL, "watch", "--operation", "op-1")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "operation:progress_started")
		assert.Contains(t, lines[1], "50%")
		assert.Contains(t, lines[2], "operation:complete")
		assert.NotContains(t, out, "op-2")
		assert.NotContains(t, out, "op-3")
	})

	t.Run("count", func(t *testing.T) {
		srv := fakeDaemon(t, stream)

		out, err := run(t, srv.URL, "watch", "--count", "2")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "connected")
		assert.Contains(t, lines[0], "client=c-1")
	})

	t.Run("ends when the server closes", func(t *testing.T) {
		srv := fakeDaemon(t, stream)

		out, err := run(t, srv.URL, "--json", "watch")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, len(stream))
		var last events.Message
		require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
		assert.Equal(t, events.MessageTypeOperationUpdate, last.Type)
	})
}

func TestServerFromEnvironment(t *testing.T) {
	srv := fakeDaemon(t, nil)
	t.Setenv(ServerEnv, srv.URL)

	out, err := run(t, "", "get", "op-2")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestNewClient_InvalidServer(t *testing.T) {
	for _, server := range []string{"localhost:8080", "ftp://host", "http://", "::"} {
		_, err := NewClient(server, time.Second)
		assert.Error(t, err, server)
	}
}
