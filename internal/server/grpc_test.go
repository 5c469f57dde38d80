package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/ocr/ocrtest"
)

func (f *fixture) grpcConn(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(NewExtractionGRPC(f.proc, nil), nil)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPC_Extract(t *testing.T) {
	f := newFixture(t, goodReply)
	client := NewExtractionServiceClient(f.grpcConn(t))

	ctx := metadata.AppendToOutgoingContext(context.Background(), MetadataFileName, "lab.pdf")
	out, err := client.Extract(ctx, wrapperspb.Bytes(ocrtest.MinimalPDF(1)))
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, "PARSED", m["status"])
	assert.Equal(t, "lab.pdf", m["file_name"])
	rec := m["record"].(map[string]any)
	assert.Equal(t, "Compliant", rec["conclusion"])
	rows := rec["analysis_results"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "6.8", rows[0].(map[string]any)["result"])
}

func TestGRPC_ExtractErrors(t *testing.T) {
	f := newFixture(t, "no json here")
	client := NewExtractionServiceClient(f.grpcConn(t))

	_, err := client.Extract(context.Background(), wrapperspb.Bytes(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Extract(context.Background(), wrapperspb.Bytes([]byte("not a pdf")))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Extract(context.Background(), wrapperspb.Bytes(ocrtest.MinimalPDF(1)))
	st := status.Convert(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	require.Len(t, st.Details(), 1)
	detail, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	assert.Equal(t, "no_json_found", detail.AsMap()["kind"])
	assert.Equal(t, "no json here", detail.AsMap()["raw"])

	f.completer.err = common.WrapError(common.ErrUpstream, "mistral status 429")
	_, err = client.Extract(context.Background(), wrapperspb.Bytes(ocrtest.MinimalPDF(2)))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGRPC_Parse(t *testing.T) {
	f := newFixture(t, goodReply)
	client := NewExtractionServiceClient(f.grpcConn(t))

	out, err := client.Parse(context.Background(), wrapperspb.String(goodReply))
	require.NoError(t, err)
	rec := out.AsMap()["record"].(map[string]any)
	info := rec["report_info"].(map[string]any)
	assert.Equal(t, "2403", info["report_id"])
	assert.Nil(t, info["issue_date"])

	_, err = client.Parse(context.Background(), wrapperspb.String("[1, 2]"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "not an object")
}

func TestGRPC_Health(t *testing.T) {
	f := newFixture(t, goodReply)
	hc := healthpb.NewHealthClient(f.grpcConn(t))

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ExtractionServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPC_ExtractEmptyNamesFile(t *testing.T) {
	f := newFixture(t, goodReply)
	client := NewExtractionServiceClient(f.grpcConn(t))

	ctx := metadata.AppendToOutgoingContext(context.Background(), MetadataFileName, "empty.pdf")
	_, err := client.Extract(ctx, wrapperspb.Bytes(nil))
	st := status.Convert(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	assert.Contains(t, st.Message(), `"empty.pdf"`)
}

func TestToStruct_UnencodableIsInternal(t *testing.T) {
	_, err := toStruct(map[string]any{"ch": make(chan int)})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "marshal response")
}
