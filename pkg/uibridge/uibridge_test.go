package uibridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/lifeline/pkg/voicesession"
)

type fakeController struct {
	mu      sync.Mutex
	state   voicesession.State
	subs    map[int]func(voicesession.State)
	nextSub int
	toggles int
	stops   int
	texts   []string
	exams   []string
	sendErr error
}

func (f *fakeController) State() voicesession.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe(fn func(voicesession.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = map[int]func(voicesession.State){}
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeController) Toggle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.toggles > 1 {
		return voicesession.ErrBusy
	}
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeController) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeController) Associate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exams = append(f.exams, id)
	return nil
}

// set changes the state and notifies subscribers.
func (f *fakeController) set(st voicesession.State) {
	f.mu.Lock()
	f.state = st
	subs := make([]func(voicesession.State), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (f *fakeController) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeController) calls() (toggles, stops int, texts, exams []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles, f.stops, append([]string(nil), f.texts...), append([]string(nil), f.exams...)
}

func dial(t *testing.T, ctrl Controller) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(ctrl))
	t.Cleanup(srv.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := ws.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// readState reads until a state message satisfying ok arrives.
func readState(t *testing.T, ws *websocket.Conn, ok func(voicesession.State) bool) voicesession.State {
	t.Helper()
	for {
		m := read(t, ws)
		if m.Type == TypeState && m.State != nil && ok(*m.State) {
			return *m.State
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStatePushedOnConnect(t *testing.T) {
	ctrl := &fakeController{state: voicesession.State{Phase: voicesession.PhaseIdle, ExamID: "e1"}}
	ws := dial(t, ctrl)

	m := read(t, ws)
	if m.Type != TypeState || m.State == nil {
		t.Fatalf("first message = %+v", m)
	}
	if m.State.Phase != voicesession.PhaseIdle || m.State.ExamID != "e1" {
		t.Errorf("state = %+v", m.State)
	}
}

func TestStatePushedOnChange(t *testing.T) {
	ctrl := &fakeController{}
	ws := dial(t, ctrl)
	read(t, ws)
	waitFor(t, "subscription", func() bool { return ctrl.subscribers() == 1 })

	ctrl.set(voicesession.State{
		Phase:  voicesession.PhaseActive,
		Status: voicesession.StatusActive,
		Active: true,
	})
	st := readState(t, ws, func(st voicesession.State) bool { return st.Active })
	if st.Status != voicesession.StatusActive {
		t.Errorf("status = %q", st.Status)
	}
}

func TestIntents(t *testing.T) {
	ctrl := &fakeController{}
	ws := dial(t, ctrl)
	read(t, ws)

	for _, in := range []Intent{
		{Type: TypeToggle},
		{Type: TypeSendText, Text: "hello"},
		{Type: TypeAssociate, ExamID: "exam-1"},
		{Type: TypeStop},
	} {
		if err := ws.WriteJSON(in); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "intents", func() bool {
		toggles, stops, texts, exams := ctrl.calls()
		return toggles == 1 && stops == 1 && len(texts) == 1 && len(exams) == 1
	})
	_, _, texts, exams := ctrl.calls()
	if texts[0] != "hello" || exams[0] != "exam-1" {
		t.Errorf("texts = %v, exams = %v", texts, exams)
	}
}

func TestIntentErrors(t *testing.T) {
	tests := []struct {
		name string
		send string
		want string
	}{
		{"unknown", `{"type":"dance"}`, `unknown intent "dance"`},
		{"malformed", `{"type":`, "malformed intent"},
		{"send failure", `{"type":"send_text","text":"hi"}`, voicesession.StatusNoSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{sendErr: errors.New(voicesession.StatusNoSession)}
			ws := dial(t, ctrl)
			read(t, ws)

			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatal(err)
			}
			for {
				m := read(t, ws)
				if m.Type != TypeError {
					continue
				}
				if !strings.Contains(m.Error, tt.want) {
					t.Errorf("error = %q, want it to contain %q", m.Error, tt.want)
				}
				return
			}
		})
	}
}

func TestToggleBusyReported(t *testing.T) {
	ctrl := &fakeController{}
	ws := dial(t, ctrl)
	read(t, ws)

	ws.WriteJSON(Intent{Type: TypeToggle})
	ws.WriteJSON(Intent{Type: TypeToggle})
	for {
		m := read(t, ws)
		if m.Type == TypeError {
			if m.Error != voicesession.ErrBusy.Error() {
				t.Errorf("error = %q", m.Error)
			}
			return
		}
	}
}

func TestUnsubscribeOnDisconnect(t *testing.T) {
	ctrl := &fakeController{}
	ws := dial(t, ctrl)
	read(t, ws)
	waitFor(t, "subscription", func() bool { return ctrl.subscribers() == 1 })

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
	waitFor(t, "unsubscribe", func() bool { return ctrl.subscribers() == 0 })
}
