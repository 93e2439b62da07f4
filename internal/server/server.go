package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/audio"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/engine"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/telemetry"
)

// languageMetadataKey carries the client's ISO 639-1 language in request metadata.
const languageMetadataKey = "nupi.lang.iso1"

// Server implements TranscriberServer on top of an Engine.
type Server struct {
	cfg     config.Config
	log     *slog.Logger
	engine  engine.Engine
	metrics *telemetry.Recorder
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, eng engine.Engine, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if eng == nil {
		panic("server: engine must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger, nil)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_kind", cfg.ModelKind,
			"language", cfg.Language,
		),
		engine:  eng,
		metrics: metrics,
	}
}

// Transcribe decodes the request audio and streams one response per segment,
// then a final response with the joined text.
func (s *Server) Transcribe(req *TranscribeRequest, stream TranscribeStream) (err error) {
	ctx := stream.Context()
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := s.log.With("request_id", requestID)

	run := s.metrics.StartTranscription(requestID, req.Metadata)
	defer func() { run.Finish(err) }()

	samples, err := decodeAudio(req)
	if err != nil {
		log.Warn("rejected audio payload", "error", err, "format", req.Format)
		return toStatus(err)
	}
	run.RecordAudio(len(samples))

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = resolveLanguage(s.cfg.Language, req.Metadata)
	}
	metadata := adapterinfo.TranscriptMetadata(s.cfg.ModelKind, language)
	log.Info("transcription started", "samples", len(samples), "language", language)

	var sequence uint64
	out, err := s.engine.Transcribe(ctx, samples, engine.Options{Language: language}, func(seg scheduler.Segment) error {
		sequence++
		run.RecordSegment(seg)
		return stream.Send(&TranscribeResponse{
			RequestID:        requestID,
			Sequence:         sequence,
			Start:            seg.Start,
			End:              seg.End(),
			Text:             seg.Text,
			Tokens:           seg.Tokens,
			AvgLogprob:       seg.AvgLogprob,
			NoSpeechProb:     seg.NoSpeechProb,
			Temperature:      seg.Temperature,
			CompressionRatio: seg.CompressionRatio,
			Metadata:         metadata,
		})
	})
	run.RecordStats(out.Stats)
	if err != nil {
		log.Error("transcription failed", "error", err)
		return toStatus(err)
	}

	final := &TranscribeResponse{
		RequestID: requestID,
		Sequence:  sequence + 1,
		Text:      out.Text(),
		Final:     true,
		Language:  out.Language,
		Metadata:  metadata,
	}
	if n := len(out.Segments); n > 0 {
		final.Start = out.Segments[0].Start
		final.End = out.Segments[n-1].End()
	}
	if err := stream.Send(final); err != nil {
		log.Error("failed to send final transcript", "error", err)
		return err
	}
	return nil
}

func decodeAudio(req *TranscribeRequest) ([]float32, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", audio.ErrInputFormat)
	}
	switch strings.ToLower(strings.TrimSpace(req.Format)) {
	case "wav":
		return audio.DecodeWAV(bytes.NewReader(req.Audio), mel.SampleRate)
	case "", "pcm16", "s16le":
		if req.SampleRate != 0 && req.SampleRate != mel.SampleRate {
			return nil, fmt.Errorf("%w: sample rate %d, want %d", audio.ErrInputFormat, req.SampleRate, mel.SampleRate)
		}
		return audio.PCM16ToFloat32(req.Audio)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", audio.ErrInputFormat, req.Format)
	}
}

// resolveLanguage picks the language for a request. In client mode the
// language comes from request metadata, falling back to auto detection.
func resolveLanguage(configured string, metadata map[string]string) string {
	if strings.TrimSpace(configured) != config.ClientLanguage {
		return strings.TrimSpace(configured)
	}
	if lang := strings.TrimSpace(metadata[languageMetadataKey]); lang != "" {
		return lang
	}
	return decoder.AutoLanguage
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, audio.ErrInputFormat):
		code = codes.InvalidArgument
	case errors.Is(err, decoder.ErrConfiguration), errors.Is(err, decoder.ErrUnsupportedLanguage):
		code = codes.FailedPrecondition
	case errors.Is(err, engine.ErrClosed):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}
