package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
)

func writeTone(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	data := make([]int, int(seconds*16000))
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"NUPI_CONFIG_FILE", "NUPI_MODULE_CONFIG", "NUPI_MODEL_PATH", "NUPI_MODEL_KIND", "NUPI_LANGUAGE_HINT", "NUPI_TASK"} {
		t.Setenv(key, "")
	}
}

func TestRunStubText(t *testing.T) {
	clearEnv(t)
	cli := CLI{Input: writeTone(t, 2), Stub: true, Format: "text"}

	var out bytes.Buffer
	if err := cli.Run(context.Background(), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "stub transcript from native whisper." {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRunStubJSON(t *testing.T) {
	clearEnv(t)
	cli := CLI{Input: writeTone(t, 2), Format: "json", Language: "pl"}

	var out bytes.Buffer
	if err := cli.Run(context.Background(), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var doc struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Segments []struct {
			Start float64 `json:"start"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if doc.Language != "pl" || len(doc.Segments) != 1 || doc.Text == "" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestRunRejectsBadTask(t *testing.T) {
	clearEnv(t)
	cli := CLI{Input: writeTone(t, 0.5), Stub: true, Task: "summarise"}
	if err := cli.Run(context.Background(), &bytes.Buffer{}); err == nil {
		t.Fatal("expected invalid task error")
	}
}

func TestRenderSRT(t *testing.T) {
	segments := []scheduler.Segment{
		{Start: 0, Duration: 30, Result: decoder.Result{Text: " hello world"}},
		{Start: 30, Duration: 15, Result: decoder.Result{Text: "  "}},
		{Start: 45, Duration: 3725.5, Result: decoder.Result{Text: "bye"}},
	}
	var buf bytes.Buffer
	if err := renderSRT(&buf, segments); err != nil {
		t.Fatalf("renderSRT: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:30,000\nhello world\n\n" +
		"2\n00:00:45,000 --> 01:02:50,500\nbye\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected SRT:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestSRTTimestamp(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00:00,000",
		-1:      "00:00:00,000",
		1.2346:  "00:00:01,235",
		61.5:    "00:01:01,500",
		3600.25: "01:00:00,250",
	}
	for in, want := range cases {
		if got := srtTimestamp(in); got != want {
			t.Errorf("srtTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}
