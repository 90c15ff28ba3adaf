package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Capture.ChunkFrames != 1024 {
		t.Fatalf("expected default chunk frames 1024, got %d", cfg.Capture.ChunkFrames)
	}
	if cfg.Silence.Threshold != 0.02 {
		t.Fatalf("expected default silence threshold 0.02, got %v", cfg.Silence.Threshold)
	}
	if cfg.Silence.DurationMS != 1500 {
		t.Fatalf("expected default silence duration 1500ms, got %d", cfg.Silence.DurationMS)
	}
	if cfg.Transcription.TimeoutMS != 30000 {
		t.Fatalf("expected default transcription timeout 30000ms, got %d", cfg.Transcription.TimeoutMS)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXD_CAPTURE_DRIVER", "mock")
	t.Setenv("VOXD_CAPTURE_SAMPLE_RATE", "8000")
	t.Setenv("VOXD_CAPTURE_POLL_INTERVAL_MS", "25")
	t.Setenv("VOXD_SILENCE_THRESHOLD", "0.05")
	t.Setenv("VOXD_SILENCE_DURATION_MS", "900")
	t.Setenv("VOXD_SILENCE_AUTO_STOP", "false")
	t.Setenv("VOXD_TRANSCRIPTION_MODE", "exec")
	t.Setenv("VOXD_TRANSCRIPTION_COMMAND", "whisper-cli --json")
	t.Setenv("VOXD_TRANSCRIPTION_TIMEOUT_MS", "15000")
	t.Setenv("VOXD_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXD_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Capture.Driver != "mock" {
		t.Fatalf("expected capture driver override, got %s", cfg.Capture.Driver)
	}
	if cfg.Capture.SampleRate != 8000 {
		t.Fatalf("expected sample rate 8000, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Capture.PollIntervalMS != 25 {
		t.Fatalf("expected poll interval 25, got %d", cfg.Capture.PollIntervalMS)
	}
	if cfg.Silence.Threshold != 0.05 {
		t.Fatalf("expected silence threshold 0.05, got %v", cfg.Silence.Threshold)
	}
	if cfg.Silence.DurationMS != 900 {
		t.Fatalf("expected silence duration 900, got %d", cfg.Silence.DurationMS)
	}
	if cfg.Silence.AutoStop {
		t.Fatal("expected auto stop override false")
	}
	if cfg.Transcription.Mode != "exec" || cfg.Transcription.Command != "whisper-cli --json" {
		t.Fatalf("expected exec transcription override, got %s / %q", cfg.Transcription.Mode, cfg.Transcription.Command)
	}
	if cfg.Transcription.TimeoutMS != 15000 {
		t.Fatalf("expected timeout 15000, got %d", cfg.Transcription.TimeoutMS)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("VOXD_CAPTURE_DRIVER", "alsa")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown capture driver")
	}

	t.Setenv("VOXD_CAPTURE_DRIVER", "mock")
	t.Setenv("VOXD_SILENCE_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for out-of-range silence threshold")
	}

	t.Setenv("VOXD_SILENCE_THRESHOLD", "0.02")
	t.Setenv("VOXD_TRANSCRIPTION_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
