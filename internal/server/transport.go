package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the fully qualified gRPC service name, also used for health checks.
const ServiceName = "nupi.stt.whisper.v1.Transcriber"

const transcribeMethod = "/" + ServiceName + "/Transcribe"

// TranscribeRequest carries one complete audio payload.
type TranscribeRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Audio     []byte `json:"audio"`
	// Format is "wav" or "pcm16" (little-endian mono); empty means pcm16.
	Format     string            `json:"format,omitempty"`
	SampleRate int               `json:"sample_rate,omitempty"`
	Language   string            `json:"language,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TranscribeResponse is streamed once per decoded segment, followed by a
// final message carrying the joined transcript.
type TranscribeResponse struct {
	RequestID        string            `json:"request_id"`
	Sequence         uint64            `json:"sequence"`
	Start            float64           `json:"start"`
	End              float64           `json:"end"`
	Text             string            `json:"text"`
	Tokens           []int             `json:"tokens,omitempty"`
	AvgLogprob       float64           `json:"avg_logprob"`
	NoSpeechProb     float64           `json:"no_speech_prob"`
	Temperature      float64           `json:"temperature"`
	CompressionRatio float64           `json:"compression_ratio"`
	Final            bool              `json:"final"`
	Language         string            `json:"language,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TranscriberServer is implemented by Server.
type TranscriberServer interface {
	Transcribe(*TranscribeRequest, TranscribeStream) error
}

// TranscribeStream is the server side of the Transcribe stream.
type TranscribeStream interface {
	Send(*TranscribeResponse) error
	grpc.ServerStream
}

// ServiceDesc describes the Transcriber service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranscriberServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Transcribe",
			Handler:       transcribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "whisper/v1/transcriber.json",
}

// Register attaches srv to the gRPC server.
func Register(s grpc.ServiceRegistrar, srv TranscriberServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func transcribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(TranscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TranscriberServer).Transcribe(req, &transcribeServerStream{stream})
}

type transcribeServerStream struct {
	grpc.ServerStream
}

func (s *transcribeServerStream) Send(resp *TranscribeResponse) error {
	return s.ServerStream.SendMsg(resp)
}

// Client calls the Transcriber service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// TranscribeClient receives the streamed responses.
type TranscribeClient struct {
	grpc.ClientStream
}

// Recv returns the next response, or io.EOF after the final one.
func (c *TranscribeClient) Recv() (*TranscribeResponse, error) {
	resp := new(TranscribeResponse)
	if err := c.ClientStream.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Transcribe opens the server stream and sends req.
func (c *Client) Transcribe(ctx context.Context, req *TranscribeRequest, opts ...grpc.CallOption) (*TranscribeClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], transcribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &TranscribeClient{stream}, nil
}

const codecName = "json"

// jsonCodec lets the service run without generated protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
