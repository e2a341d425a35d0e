package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/types"
)

// recordReadLimit caps a single websocket message.
const recordReadLimit = 1 << 20

// Encodings accepted for live recordings.
const (
	EncodingPCM16 = "pcm16"
	EncodingOpus  = "opus"
)

// StartMessage opens a live recording. Binary frames follow, then a
// {"type":"stop"} or {"type":"cancel"} text message.
type StartMessage struct {
	Title    string `json:"title"`
	Date     string `json:"date,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Provider string `json:"provider,omitempty"`
	Language string `json:"language,omitempty"`

	// Encoding is pcm16 (little-endian interleaved) or opus (one packet per
	// frame). Default: pcm16.
	Encoding string `json:"encoding,omitempty"`

	// SampleRate defaults to 16000 for pcm16 and 48000 for opus.
	SampleRate int `json:"sample_rate,omitempty"`
	// Channels defaults to 1.
	Channels int `json:"channels,omitempty"`
}

// controlMessage is a text message sent by the client after the start
// message.
type controlMessage struct {
	Type string `json:"type"`
}

// Event is a message sent by the server during a live recording.
type Event struct {
	// Type is started, progress, meeting or error.
	Type string `json:"type"`

	Stage   string `json:"stage,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Meeting any `json:"meeting,omitempty"`
}

// errCancelled ends a recording the client abandoned.
var errCancelled = errors.New("api: recording cancelled")

// handleRecord handles GET /api/record. The audio is buffered into a
// temporary canonical WAV and processed as a live recording once the client
// sends stop.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(recordReadLimit)

	ctx := r.Context()
	log := observe.Logger(ctx)

	start, provider, err := readStart(ctx, conn)
	if err != nil {
		_ = wsjson.Write(ctx, conn, Event{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusPolicyViolation, "invalid start message")
		return
	}

	src := audio.Format{SampleRate: start.SampleRate, Channels: start.Channels}
	rec, err := audio.NewRecorder(s.app.Config().Audio.TempDir, src)
	if err != nil {
		_ = wsjson.Write(ctx, conn, Event{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "recorder unavailable")
		return
	}
	_ = wsjson.Write(ctx, conn, Event{Type: "started"})
	log.Info("live recording started", "title", start.Title, "encoding", start.Encoding, "format", src.String())

	if err := receive(ctx, conn, rec, start); err != nil {
		rec.Abort()
		if errors.Is(err, errCancelled) {
			log.Info("live recording cancelled")
			conn.Close(websocket.StatusNormalClosure, "cancelled")
			return
		}
		log.Warn("live recording aborted", "err", err)
		if websocket.CloseStatus(err) == -1 {
			_ = wsjson.Write(ctx, conn, Event{Type: "error", Error: err.Error()})
			conn.Close(websocket.StatusUnsupportedData, "invalid audio")
		}
		return
	}

	info, err := rec.Finish()
	if err != nil {
		_ = wsjson.Write(ctx, conn, Event{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "finish failed")
		return
	}
	defer info.Cleanup()
	log.Info("live recording finished", "duration", info.Duration)

	m, err := s.app.Process(ctx, pipeline.Request{
		Path:     info.CanonicalPath,
		Title:    start.Title,
		Date:     start.Date,
		Notes:    start.Notes,
		Provider: provider,
		Language: start.Language,
		Source:   types.SourceLiveRecording,
		Progress: func(stage pipeline.Stage, percent int, message string) {
			_ = wsjson.Write(ctx, conn, Event{Type: "progress", Stage: string(stage), Percent: percent, Message: message})
		},
	})
	if err != nil {
		ev := Event{Type: "error", Error: err.Error()}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			ev.Stage = string(se.Stage)
		}
		_ = wsjson.Write(ctx, conn, ev)
		conn.Close(websocket.StatusNormalClosure, "processing failed")
		return
	}
	_ = wsjson.Write(ctx, conn, Event{Type: "meeting", Meeting: m})
	conn.Close(websocket.StatusNormalClosure, "done")
}

// readStart reads and validates the start message, filling defaults.
func readStart(ctx context.Context, conn *websocket.Conn) (StartMessage, types.ProviderID, error) {
	var start StartMessage
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return start, "", err
	}
	if typ != websocket.MessageText {
		return start, "", errors.New("first message must be a JSON start message")
	}
	if err := json.Unmarshal(data, &start); err != nil {
		return start, "", fmt.Errorf("decode start message: %w", err)
	}
	if strings.TrimSpace(start.Title) == "" {
		return start, "", errors.New("title is required")
	}

	var provider types.ProviderID
	if start.Provider != "" {
		if provider, err = types.ParseProviderID(start.Provider); err != nil {
			return start, "", err
		}
	}

	start.Encoding = strings.ToLower(start.Encoding)
	switch start.Encoding {
	case "", EncodingPCM16:
		start.Encoding = EncodingPCM16
		if start.SampleRate == 0 {
			start.SampleRate = audio.CanonicalSampleRate
		}
	case EncodingOpus:
		if start.SampleRate == 0 {
			start.SampleRate = 48000
		}
	default:
		return start, "", fmt.Errorf("unsupported encoding %q (want pcm16 or opus)", start.Encoding)
	}
	if start.Channels == 0 {
		start.Channels = 1
	}
	return start, provider, nil
}

// receive writes binary frames into rec until the client sends stop.
func receive(ctx context.Context, conn *websocket.Conn, rec *audio.Recorder, start StartMessage) error {
	var dec *audio.OpusDecoder
	if start.Encoding == EncodingOpus {
		d, err := audio.NewOpusDecoder(audio.Format{SampleRate: start.SampleRate, Channels: start.Channels})
		if err != nil {
			return err
		}
		dec = d
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageText {
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("decode control message: %w", err)
			}
			switch msg.Type {
			case "stop":
				return nil
			case "cancel":
				return errCancelled
			default:
				return fmt.Errorf("unknown control message %q", msg.Type)
			}
		}

		if dec == nil {
			err = rec.WriteBytes(data)
		} else {
			var pcm []int16
			if pcm, err = dec.Decode(data); err == nil {
				err = rec.Write(pcm)
			}
		}
		if err != nil {
			return err
		}
	}
}
