package vad_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/privanote/pkg/provider/vad"
	"github.com/MrWong99/privanote/pkg/provider/vad/mock"
)

const rate = 16000

// signal builds a mono recording from alternating silent and loud spans given
// in milliseconds, starting with silence.
func signal(spansMs ...int) []float32 {
	var out []float32
	loud := false
	for _, ms := range spansMs {
		n := rate * ms / 1000
		for i := range n {
			var v float32
			if loud {
				v = 0.3
				if i%2 == 1 {
					v = -0.3
				}
			}
			out = append(out, v)
		}
		loud = !loud
	}
	return out
}

func TestEnergySession_Events(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.MinSilenceMs = 60 // two frames
	sess, err := (&vad.EnergyEngine{}).NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	quiet := make([]float32, cfg.FrameSamples())
	loud := signal(0, 30)

	steps := []struct {
		frame []float32
		want  vad.EventType
	}{
		{quiet, vad.Silence},
		{loud, vad.SpeechStart},
		{loud, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{loud, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechEnd},
		{quiet, vad.Silence},
	}
	for i, s := range steps {
		ev, err := sess.ProcessFrame(s.frame)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != s.want {
			t.Errorf("step %d: got %s, want %s (p=%.3f)", i, ev.Type, s.want, ev.Probability)
		}
	}

	sess.Reset()
	if ev, _ := sess.ProcessFrame(quiet); ev.Type != vad.Silence {
		t.Errorf("after Reset: got %s, want silence", ev.Type)
	}
}

func TestEnergySession_FrameSize(t *testing.T) {
	t.Parallel()
	sess, err := (&vad.EnergyEngine{}).NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.ProcessFrame(make([]float32, 10)); err == nil {
		t.Error("expected error for wrong frame size")
	}
	_ = sess.Close()
	if _, err := sess.ProcessFrame(make([]float32, 480)); err == nil {
		t.Error("expected error after Close")
	}
}

func TestEnergyEngine_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*vad.Config)
	}{
		{"zero rate", func(c *vad.Config) { c.SampleRate = 0 }},
		{"zero frame", func(c *vad.Config) { c.FrameSizeMs = 0 }},
		{"threshold above one", func(c *vad.Config) { c.SpeechThreshold = 1.5 }},
		{"silence above speech", func(c *vad.Config) { c.SilenceThreshold = 0.9 }},
		{"negative pad", func(c *vad.Config) { c.SpeechPadMs = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := vad.DefaultConfig()
			tt.mutate(&cfg)
			if _, err := (&vad.EnergyEngine{}).NewSession(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	pad := rate * cfg.SpeechPadMs / 1000
	frame := cfg.FrameSamples()

	t.Run("silence yields nothing", func(t *testing.T) {
		t.Parallel()
		regions, err := vad.Detect(context.Background(), &vad.EnergyEngine{}, make([]float32, rate*30), cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(regions) != 0 {
			t.Errorf("regions = %v, want none", regions)
		}
	})

	t.Run("single burst is padded", func(t *testing.T) {
		t.Parallel()
		samples := signal(1000, 1000, 1000)
		regions, err := vad.Detect(context.Background(), &vad.EnergyEngine{}, samples, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(regions) != 1 {
			t.Fatalf("regions = %v, want 1", regions)
		}
		r := regions[0]
		if r.Start > rate-pad || r.Start < rate-pad-frame {
			t.Errorf("Start = %d, want about %d", r.Start, rate-pad)
		}
		if r.End < 2*rate+pad || r.End > 2*rate+pad+frame {
			t.Errorf("End = %d, want about %d", r.End, 2*rate+pad)
		}
	})

	t.Run("short pause stays in one region", func(t *testing.T) {
		t.Parallel()
		samples := signal(500, 1000, 200, 1000, 500)
		regions, err := vad.Detect(context.Background(), &vad.EnergyEngine{}, samples, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(regions) != 1 {
			t.Errorf("regions = %v, want 1", regions)
		}
	})

	t.Run("long pause splits regions", func(t *testing.T) {
		t.Parallel()
		samples := signal(200, 1000, 3000, 1000, 500)
		regions, err := vad.Detect(context.Background(), &vad.EnergyEngine{}, samples, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(regions) != 2 {
			t.Fatalf("regions = %v, want 2", regions)
		}
		if regions[0].End >= regions[1].Start {
			t.Errorf("regions overlap: %v", regions)
		}
		if regions[0].Start != 0 {
			t.Errorf("first region should be clipped to 0, got %d", regions[0].Start)
		}
	})

	t.Run("speech until the end", func(t *testing.T) {
		t.Parallel()
		samples := signal(1000, 2000)
		regions, err := vad.Detect(context.Background(), &vad.EnergyEngine{}, samples, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(regions) != 1 || regions[0].End != len(samples) {
			t.Errorf("regions = %v, want one ending at %d", regions, len(samples))
		}
	})
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cfg := vad.DefaultConfig()
	samples := make([]float32, rate)

	if _, err := vad.Detect(context.Background(), &mock.Engine{OpenErr: boom}, samples, cfg); !errors.Is(err, boom) {
		t.Errorf("NewSession error: got %v", err)
	}

	failing := &mock.Engine{FrameErr: boom}
	if _, err := vad.Detect(context.Background(), failing, samples, cfg); !errors.Is(err, boom) {
		t.Errorf("ProcessFrame error: got %v", err)
	}
	if n := failing.Last().Closes(); n != 1 {
		t.Errorf("session closed %d times, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := vad.Detect(ctx, &vad.EnergyEngine{}, samples, cfg); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v", err)
	}
}

func TestDetect_ScriptedEvents(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.SpeechPadMs = 0
	n := cfg.FrameSamples()
	eng := &mock.Engine{
		Script: []vad.Event{
			{Type: vad.Silence},
			{Type: vad.SpeechStart, Probability: 0.9},
			{Type: vad.SpeechContinue, Probability: 0.8},
			{Type: vad.SpeechContinue, Probability: 0.1},
			{Type: vad.SpeechEnd, Probability: 0.1},
		},
	}
	regions, err := vad.Detect(context.Background(), eng, make([]float32, n*8), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := vad.Region{Start: n, End: 3 * n}
	if len(regions) != 1 || regions[0] != want {
		t.Errorf("regions = %v, want [%v]", regions, want)
	}
	if got := eng.Last().Frames(); got != 8 {
		t.Errorf("frames processed = %d, want 8", got)
	}
	if diff := cmp.Diff([]vad.Config{cfg}, eng.Configs()); diff != "" {
		t.Errorf("session configs (-want +got):\n%s", diff)
	}
}
