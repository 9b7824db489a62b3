package evolution

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store/memory"
)

func newTestRouter(t *testing.T) (*Router, *memory.Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	repo := memory.New()
	return NewRouter(repo, zap.New(core)), repo, logs
}

func TestDispatch_UnknownEventIsAcknowledged(t *testing.T) {
	router, _, logs := newTestRouter(t)

	err := router.Dispatch(context.Background(), domain.WebhookEnvelope{
		Event:    "labels.edit",
		Instance: "main",
		Data:     json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("unknown event must not error: %v", err)
	}
	if got := logs.FilterMessage("unhandled webhook event").Len(); got != 1 {
		t.Fatalf("expected exactly 1 warning, got %d", got)
	}
}

func TestDispatch_MessageUpsertSavesRecord(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	data := json.RawMessage(`{
		"key": {"id": "MSG-1", "remoteJid": "5511999990000@s.whatsapp.net"},
		"message": {"conversation": "hello"},
		"messageTimestamp": 1717243200
	}`)
	err := router.Dispatch(context.Background(), domain.WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "main",
		Data:     data,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	saved, err := repo.GetMessage(context.Background(), "MSG-1")
	if err != nil {
		t.Fatalf("message not saved: %v", err)
	}
	if saved.Body != "hello" || saved.InstanceName != "main" {
		t.Fatalf("unexpected record: %+v", saved)
	}
	if saved.Status != "sent" {
		t.Fatalf("expected default status sent, got %s", saved.Status)
	}
}

func TestDispatch_MessageUpdateChangesStatus(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	upsert := json.RawMessage(`{"key": {"id": "MSG-2"}, "message": {"conversation": "hi"}}`)
	if err := router.Dispatch(context.Background(), domain.WebhookEnvelope{Event: "send.message", Instance: "main", Data: upsert}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	update := json.RawMessage(`{"key": {"id": "MSG-2"}, "status": "READ"}`)
	if err := router.Dispatch(context.Background(), domain.WebhookEnvelope{Event: "messages.update", Instance: "main", Data: update}); err != nil {
		t.Fatalf("update: %v", err)
	}

	saved, err := repo.GetMessage(context.Background(), "MSG-2")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if saved.Status != "READ" {
		t.Fatalf("expected status READ, got %s", saved.Status)
	}
}

func TestDispatch_MessageUpdateForUnknownMessageIsSkipped(t *testing.T) {
	router, _, _ := newTestRouter(t)

	update := json.RawMessage(`{"key": {"id": "NEVER-SEEN"}, "status": "READ"}`)
	err := router.Dispatch(context.Background(), domain.WebhookEnvelope{
		Event:    "send.message.update",
		Instance: "main",
		Data:     update,
	})
	if err != nil {
		t.Fatalf("status update for unknown message must be a skip, got %v", err)
	}
}

func TestDispatch_ConnectionUpdateUpsertsInstance(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	for _, state := range []string{"connecting", "open"} {
		data, _ := json.Marshal(map[string]string{"state": state})
		err := router.Dispatch(context.Background(), domain.WebhookEnvelope{
			Event:    "connection.update",
			Instance: "main",
			Data:     data,
		})
		if err != nil {
			t.Fatalf("dispatch %s: %v", state, err)
		}
	}

	instance, err := repo.GetMessagingInstance(context.Background(), "main")
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if instance.ConnectionStatus != "open" {
		t.Fatalf("last write must win, got %s", instance.ConnectionStatus)
	}
}
