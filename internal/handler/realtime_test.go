package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/service"
)

func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		_ = app.ShutdownWithTimeout(time.Second)
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return listener.Addr().String()
}

func readFrame(t *testing.T, conn *websocket.Conn) dto.ChatServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame dto.ChatServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatWebsocketLiveSession(t *testing.T) {
	documents := newTestStore(t)
	svc := service.NewChatService(repository.NewChatRepository(documents), repository.NewUserRepository(documents), documents, validator.New(), zerolog.Nop())

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewChatHandler(svc, zerolog.Nop(), 0).Register(app.Group("/api/v1/chats", asActor(nurse, patient)))

	resp, body := call(t, app, http.MethodPost, "/api/v1/chats", patient, dto.ChatCreateRequest{
		Participants: []dto.ParticipantInput{{UserID: nurse.ID, Name: nurse.Name, Role: nurse.Role}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var chat dto.ChatResponse
	decodeData(t, body, &chat)

	addr := startFiberServer(t, app)
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	conn, wsResp, err := dialer.Dial("ws://"+addr+"/api/v1/chats/"+chat.ID+"/ws", http.Header{
		"X-Test-User":                {patient.ID},
		middleware.CorrelationHeader: {"ws-test"},
	})
	require.NoError(t, err)
	if wsResp != nil {
		_ = wsResp.Body.Close()
	}
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, dto.ChatFrameSnapshot, first.Type)
	require.Empty(t, first.Snapshot.Items)

	require.NoError(t, conn.WriteJSON(dto.ChatClientFrame{Type: dto.ChatFrameMessage, Content: "Is the clinic open today?"}))

	// The ack and the refreshed snapshot race each other.
	var acked, delivered bool
	for !acked || !delivered {
		frame := readFrame(t, conn)
		switch frame.Type {
		case dto.ChatFrameAck:
			require.Equal(t, "Is the clinic open today?", frame.Message.Content)
			acked = true
		case dto.ChatFrameSnapshot:
			if len(frame.Snapshot.Items) == 1 {
				require.Equal(t, chat.ID, frame.Snapshot.ChatID)
				delivered = true
			}
		default:
			t.Fatalf("unexpected frame %q", frame.Type)
		}
	}

	require.NoError(t, conn.WriteJSON(dto.ChatClientFrame{Type: dto.ChatFrameSwitch, ChatID: "missing"}))
	frame := readFrame(t, conn)
	for frame.Type == dto.ChatFrameSnapshot {
		frame = readFrame(t, conn)
	}
	require.Equal(t, dto.ChatFrameError, frame.Type)
	require.Equal(t, "not_found", frame.Error.Kind)
}

func TestChatWebsocketRejectsAnonymous(t *testing.T) {
	documents := newTestStore(t)
	svc := service.NewChatService(repository.NewChatRepository(documents), repository.NewUserRepository(documents), documents, validator.New(), zerolog.Nop())

	app := fiber.New()
	handler.NewChatHandler(svc, zerolog.Nop(), 0).Register(app.Group("/api/v1/chats", asActor(nurse, patient)))
	addr := startFiberServer(t, app)

	conn, wsResp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/chats/ws", nil)
	require.NoError(t, err)
	if wsResp != nil {
		_ = wsResp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestNotificationStreamDeliversSnapshots(t *testing.T) {
	documents := newTestStore(t)
	repo := repository.NewNotificationRepository(documents)
	svc := service.NewNotificationService(repo, repository.NewUserRepository(documents), documents, zerolog.Nop())
	ctx := context.Background()

	_, err := repo.Create(ctx, models.NotificationRecord{UserID: patient.ID, Type: "content", Title: "Clinic moved"})
	require.NoError(t, err)

	app := fiber.New()
	handler.NewNotificationHandler(svc, zerolog.Nop(), 100*time.Millisecond).Register(app.Group("/api/v1/notifications", asActor(patient)))
	addr := startFiberServer(t, app)

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/api/v1/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", patient.ID)

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextSnapshot := func() dto.NotificationSnapshotResponse {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if payload, ok := strings.CutPrefix(line, "data: "); ok {
				var snapshot dto.NotificationSnapshotResponse
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(payload)), &snapshot))
				return snapshot
			}
		}
	}

	first := nextSnapshot()
	require.Len(t, first.Items, 1)
	require.Equal(t, 1, first.Unread)

	_, err = repo.Create(ctx, models.NotificationRecord{UserID: patient.ID, Type: "content", Title: "New tip"})
	require.NoError(t, err)

	second := nextSnapshot()
	require.Len(t, second.Items, 2)
	require.Equal(t, 2, second.Unread)
}
