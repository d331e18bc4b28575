package discord

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/loadline/loadline/internal/notify"
	"github.com/loadline/loadline/internal/rate"
)

type mockSession struct {
	mu      sync.Mutex
	openErr error
	sent    []string
	sendErr error
	opened  bool
	closed  bool
}

func (m *mockSession) Open() error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.closed = true
	return nil
}

func (m *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, content)
	return &discordgo.Message{ID: "1", ChannelID: channelID}, nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "123"}); err == nil {
		t.Error("expected error without token or session")
	}
	if _, err := New(Opts{Session: &mockSession{}}); err == nil {
		t.Error("expected error without channel ID")
	}
}

func TestSend(t *testing.T) {
	sess := &mockSession{}
	n, err := New(Opts{Session: sess, ChannelID: "123"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ev := notify.Event{
		CallID: "call-1", Outcome: "booked", CarrierName: "Knight Trucking",
		LoadID: "LD-3", FinalRate: rate.FromDollars(2450), Rounds: 3,
	}
	if err := n.Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sess.sent))
	}
	if sess.sent[0] != notify.Format(ev) {
		t.Errorf("sent text = %q", sess.sent[0])
	}
}

func TestSend_BeforeConnect(t *testing.T) {
	n, err := New(Opts{Session: &mockSession{}, ChannelID: "123"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Send(context.Background(), notify.Event{CallID: "call-1"}); err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestConnect_OpenFailure(t *testing.T) {
	n, err := New(Opts{Session: &mockSession{openErr: fmt.Errorf("gateway down")}, ChannelID: "123"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Connect(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
}

func TestClose_ClosesSession(t *testing.T) {
	sess := &mockSession{}
	n, err := New(Opts{Session: sess, ChannelID: "123"})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if !sess.closed {
		t.Error("session should be closed")
	}
	// Close twice is a no-op.
	if err := n.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
