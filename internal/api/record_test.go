package api_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/privanote/internal/api"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/pkg/types"
)

func dial(t *testing.T, f *fixture) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/record"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

// readEvents collects server events until the connection closes.
func readEvents(t *testing.T, ctx context.Context, conn *websocket.Conn) []api.Event {
	t.Helper()
	var evs []api.Event
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return evs
		}
		var ev api.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == "meeting" {
			b, _ := json.Marshal(ev.Meeting)
			var m meeting.Meeting
			if err := json.Unmarshal(b, &m); err != nil {
				t.Fatalf("decode meeting: %v", err)
			}
			ev.Meeting = m
		}
		evs = append(evs, ev)
	}
}

func pcmBytes(samples []int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func TestRecord_ProcessesLiveRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn, ctx := dial(t, f)

	if err := wsjson.Write(ctx, conn, api.StartMessage{Title: "Hallway chat", Encoding: "pcm16"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	data := pcmBytes(pcm(2))
	const chunk = 3200
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		if err := conn.Write(ctx, websocket.MessageBinary, data[off:end]); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	evs := readEvents(t, ctx, conn)
	if len(evs) < 2 || evs[0].Type != "started" {
		t.Fatalf("events = %+v", evs)
	}
	last := evs[len(evs)-1]
	if last.Type != "meeting" {
		t.Fatalf("last event = %+v, want meeting", last)
	}
	m := last.Meeting.(meeting.Meeting)
	if m.Title != "Hallway chat" || m.Source != types.SourceLiveRecording {
		t.Errorf("meeting = %+v", m)
	}
	if m.Duration < 0.06 || m.Duration > 0.07 {
		t.Errorf("duration = %v minutes, want about 4 s", m.Duration)
	}

	var stages []string
	for _, ev := range evs {
		if ev.Type == "progress" {
			stages = append(stages, ev.Stage)
		}
	}
	if len(stages) == 0 || stages[len(stages)-1] != "done" {
		t.Errorf("progress stages = %v, want to end with done", stages)
	}

	assertNoRecordings(t, f)
}

func TestRecord_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start string
		want  string
	}{
		{"missing title", `{"encoding":"pcm16"}`, "title is required"},
		{"unknown encoding", `{"title":"x","encoding":"mp3"}`, "unsupported encoding"},
		{"unknown provider", `{"title":"x","provider":"gemini"}`, "unknown provider"},
		{"not json", `hello`, "decode start message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			conn, ctx := dial(t, f)
			if err := conn.Write(ctx, websocket.MessageText, []byte(tt.start)); err != nil {
				t.Fatalf("write start: %v", err)
			}
			evs := readEvents(t, ctx, conn)
			if len(evs) != 1 || evs[0].Type != "error" || !strings.Contains(evs[0].Error, tt.want) {
				t.Errorf("events = %+v, want one error containing %q", evs, tt.want)
			}
		})
	}
}

func TestRecord_CancelDiscardsAudio(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn, ctx := dial(t, f)

	_ = wsjson.Write(ctx, conn, api.StartMessage{Title: "Never mind"})
	_ = conn.Write(ctx, websocket.MessageBinary, pcmBytes(pcm(1)))
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"cancel"}`))

	evs := readEvents(t, ctx, conn)
	if len(evs) != 1 || evs[0].Type != "started" {
		t.Errorf("events = %+v, want only started", evs)
	}
	if ms, _ := f.store.List(context.Background()); len(ms) != 0 {
		t.Errorf("%d meetings stored after cancel", len(ms))
	}
	assertNoRecordings(t, f)
}

func TestRecord_TooShort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn, ctx := dial(t, f)

	_ = wsjson.Write(ctx, conn, api.StartMessage{Title: "Blip"})
	_ = conn.Write(ctx, websocket.MessageBinary, pcmBytes(make([]int16, 1600)))
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"stop"}`))

	evs := readEvents(t, ctx, conn)
	last := evs[len(evs)-1]
	if last.Type != "error" || last.Stage != "ingest" {
		t.Errorf("last event = %+v, want ingest error", last)
	}
	assertNoRecordings(t, f)
}

// assertNoRecordings checks that the live recording file was removed.
func assertNoRecordings(t *testing.T, f *fixture) {
	t.Helper()
	// The handler removes its file after the final event is written.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(f.app.Config().Audio.TempDir)
		if err != nil {
			t.Fatalf("read temp dir: %v", err)
		}
		if len(entries) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("temp dir still holds %d files", len(entries))
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
