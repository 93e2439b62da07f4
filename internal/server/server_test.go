package server_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/engine"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/server"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/telemetry"
)

const bufSize = 1024 * 1024

type harness struct {
	client   *server.Client
	recorder *telemetry.Recorder
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.NewStubEngine(cfg, logger)
	if err != nil {
		t.Fatalf("NewStubEngine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { lis.Close() })

	recorder := telemetry.NewRecorder(logger, nil)
	grpcServer := grpc.NewServer()
	server.Register(grpcServer, server.New(cfg, logger, eng, recorder))
	t.Cleanup(grpcServer.Stop)

	go func() {
		if err := grpcServer.Serve(lis); err != nil &&
			!errors.Is(err, grpc.ErrServerStopped) &&
			!errors.Is(err, net.ErrClosed) &&
			err.Error() != "closed" {
			t.Errorf("Serve() error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &harness{client: server.NewClient(conn), recorder: recorder}
}

func (h *harness) transcribe(t *testing.T, req *server.TranscribeRequest) ([]*server.TranscribeResponse, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := h.client.Transcribe(ctx, req)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	var responses []*server.TranscribeResponse
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return responses, nil
		}
		if err != nil {
			return responses, err
		}
		responses = append(responses, resp)
	}
}

func tonePCM(seconds float64) []byte {
	n := int(seconds * 16000)
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := int16(0.5 * math.MaxInt16 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func TestTranscribeStub(t *testing.T) {
	h := newHarness(t, config.Config{ListenAddr: "bufconn", ModelKind: "stub", Language: "auto"})

	responses, err := h.transcribe(t, &server.TranscribeRequest{
		RequestID: "req-1",
		Audio:     tonePCM(2),
		Format:    "pcm16",
		Metadata:  map[string]string{"session": "s-1"},
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected one segment and one final response, got %d", len(responses))
	}

	seg, final := responses[0], responses[1]
	if seg.Final || !final.Final {
		t.Fatalf("unexpected final flags: segment=%v final=%v", seg.Final, final.Final)
	}
	if seg.RequestID != "req-1" || final.RequestID != "req-1" {
		t.Fatalf("request id not propagated: %q / %q", seg.RequestID, final.RequestID)
	}
	if seg.Sequence != 1 || final.Sequence != 2 {
		t.Fatalf("unexpected sequence numbers %d, %d", seg.Sequence, final.Sequence)
	}
	if final.Text != "stub transcript from native whisper." {
		t.Fatalf("unexpected transcript %q", final.Text)
	}
	if seg.Start != 0 || seg.End <= seg.Start || final.End != seg.End {
		t.Fatalf("unexpected timing: segment [%v, %v] final end %v", seg.Start, seg.End, final.End)
	}
	if len(seg.Tokens) == 0 {
		t.Fatal("expected segment tokens")
	}
	if final.Language != "auto" {
		t.Fatalf("expected auto language, got %q", final.Language)
	}
	if final.Metadata["generator"] == "" || final.Metadata["model_kind"] != "stub" {
		t.Fatalf("unexpected metadata %v", final.Metadata)
	}

	snap := h.recorder.Snapshot()
	if snap.TotalTranscriptions != 1 || snap.FailedTranscriptions != 0 || snap.ActiveTranscriptions != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.TotalSegments != 1 || snap.TotalWindows != 1 || snap.TotalSamples != 32000 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTranscribeGeneratesRequestID(t *testing.T) {
	h := newHarness(t, config.Config{ListenAddr: "bufconn", ModelKind: "stub", Language: "auto"})

	responses, err := h.transcribe(t, &server.TranscribeRequest{Audio: tonePCM(1)})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(responses) == 0 {
		t.Fatal("expected responses")
	}
	id := responses[0].RequestID
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}
	for _, resp := range responses {
		if resp.RequestID != id {
			t.Fatalf("request id changed mid-stream: %q vs %q", resp.RequestID, id)
		}
	}
}

func TestTranscribeClientLanguageFromMetadata(t *testing.T) {
	h := newHarness(t, config.Config{ListenAddr: "bufconn", ModelKind: "stub", Language: "client"})

	responses, err := h.transcribe(t, &server.TranscribeRequest{
		Audio:    tonePCM(1),
		Metadata: map[string]string{"nupi.lang.iso1": "pl"},
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	final := responses[len(responses)-1]
	if final.Language != "pl" {
		t.Fatalf("expected pl, got %q", final.Language)
	}
}

func TestTranscribeErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		req  *server.TranscribeRequest
		want codes.Code
	}{
		{"empty audio", &server.TranscribeRequest{}, codes.InvalidArgument},
		{"odd pcm", &server.TranscribeRequest{Audio: []byte{1, 2, 3}}, codes.InvalidArgument},
		{"unknown format", &server.TranscribeRequest{Audio: tonePCM(0.1), Format: "mp3"}, codes.InvalidArgument},
		{"wrong rate", &server.TranscribeRequest{Audio: tonePCM(0.1), SampleRate: 8000}, codes.InvalidArgument},
		{"bad wav", &server.TranscribeRequest{Audio: []byte("not a wav file at all"), Format: "wav"}, codes.InvalidArgument},
		{"unsupported language", &server.TranscribeRequest{Audio: tonePCM(0.5), Language: "fr"}, codes.FailedPrecondition},
	}

	h := newHarness(t, config.Config{ListenAddr: "bufconn", ModelKind: "stub", Language: "auto"})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.transcribe(t, tc.req)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("expected %v, got %v (%v)", tc.want, got, err)
			}
		})
	}

	snap := h.recorder.Snapshot()
	if snap.FailedTranscriptions != uint64(len(cases)) || snap.ActiveTranscriptions != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
