package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/labreport-extractor/internal/pipeline"
)

const (
	ExtractionServiceName = "labreport.v1.ExtractionService"

	// MetadataFileName optionally names the uploaded document in Extract calls.
	MetadataFileName = "x-file-name"
	// MetadataRequestID is propagated into logs and the pipeline.
	MetadataRequestID = "x-request-id"
)

// ExtractionServiceServer is the server API for labreport.v1.ExtractionService.
// Requests and responses are protobuf well-known types.
type ExtractionServiceServer interface {
	// Extract runs the pipeline on PDF bytes and returns the extraction view.
	Extract(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	// Parse runs the parser on a raw model response and returns {"record": ...}.
	Parse(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func RegisterExtractionServiceServer(s grpc.ServiceRegistrar, srv ExtractionServiceServer) {
	s.RegisterService(&ExtractionService_ServiceDesc, srv)
}

func _ExtractionService_Extract_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServiceServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ExtractionServiceName + "/Extract"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExtractionServiceServer).Extract(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _ExtractionService_Parse_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServiceServer).Parse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ExtractionServiceName + "/Parse"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExtractionServiceServer).Parse(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var ExtractionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ExtractionServiceName,
	HandlerType: (*ExtractionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: _ExtractionService_Extract_Handler},
		{MethodName: "Parse", Handler: _ExtractionService_Parse_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labreport/v1/extraction.proto",
}

// ExtractionServiceClient is the client API for labreport.v1.ExtractionService.
type ExtractionServiceClient interface {
	Extract(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Parse(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type extractionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionServiceClient(cc grpc.ClientConnInterface) ExtractionServiceClient {
	return &extractionServiceClient{cc}
}

func (c *extractionServiceClient) Extract(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ExtractionServiceName+"/Extract", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *extractionServiceClient) Parse(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ExtractionServiceName+"/Parse", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractionGRPC implements ExtractionServiceServer on top of the pipeline.
type ExtractionGRPC struct {
	proc   *pipeline.Processor
	logger *slog.Logger
}

func NewExtractionGRPC(proc *pipeline.Processor, logger *slog.Logger) *ExtractionGRPC {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionGRPC{proc: proc, logger: logger}
}

func (s *ExtractionGRPC) Extract(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	name := "upload.pdf"
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataFileName); len(v) > 0 && v[0] != "" {
			name = v[0]
		}
	}
	if len(req.GetValue()) == 0 {
		return nil, common.InvalidArgumentErrorf("document %q: bytes are required", name)
	}

	res, err := s.proc.Process(ctx, ocr.Document{Name: name, Data: req.GetValue()})
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Warn("grpc.extract.failed", "file", name, "error", err)
		return nil, grpcError(err)
	}
	return toStruct(resultView(res, false))
}

func (s *ExtractionGRPC) Parse(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	rec, err := s.proc.ParseOnly(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(RecordResponse{Record: rec})
}

// grpcError maps parse failures to InvalidArgument with a Struct detail
// holding kind, raw and candidate; everything else goes through
// common.ToStatus.
func grpcError(err error) error {
	pe, ok := labreport.AsParseError(err)
	if !ok {
		return common.ToStatus(err)
	}
	st := status.New(codes.InvalidArgument, pe.Error())
	detail, derr := structpb.NewStruct(map[string]any{
		"kind":      pe.Kind.String(),
		"raw":       pe.Raw,
		"candidate": pe.Candidate,
	})
	if derr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("marshal response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.InternalErrorf("marshal response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("marshal response: %v", err)
	}
	return st, nil
}

// unaryLogging tags each call with a request ID and logs its outcome.
func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(MetadataRequestID); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			ctx, id = common.EnsureRequestID(ctx)
		} else {
			ctx = common.WithRequestID(ctx, id)
		}
		l := logger.With("req_id", id)
		ctx = common.WithLogger(ctx, l)

		resp, err := handler(ctx, req)
		l.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer builds a gRPC server with the extraction service, the
// standard health service and reflection registered.
func NewGRPCServer(svc ExtractionServiceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(unaryLogging(logger))}, opts...)
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ExtractionServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(gs)
	RegisterExtractionServiceServer(gs, svc)
	return gs, hs
}

// ServeGRPC serves on addr until ctx is cancelled, then stops gracefully.
func ServeGRPC(ctx context.Context, gs *grpc.Server, hs *health.Server, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC serving", "addr", lis.Addr().String())
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutting down")
		hs.Shutdown()
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc serve: %w", err)
	}
}
