package grpcx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cwrk-planet/board-service/internal/domain"
)

func startHealth(t *testing.T) (*Health, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	h := NewHealth()
	srv := NewServer(h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return h, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func TestHealthFollowsStore(t *testing.T) {
	h, c := startHealth(t)

	for _, svc := range []string{"", StorageService} {
		if st, err := check(t, c, svc); err != nil || st != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%q: status %v err %v", svc, st, err)
		}
	}

	h.SetStoreHealthy(false)
	if st, _ := check(t, c, StorageService); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("storage should be NOT_SERVING, got %v", st)
	}
	if st, _ := check(t, c, ""); st != healthpb.HealthCheckResponse_SERVING {
		t.Fatal("process health must not follow storage")
	}

	h.SetStoreHealthy(true)
	if st, _ := check(t, c, StorageService); st != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("storage should recover, got %v", st)
	}

	if _, err := check(t, c, "unknown"); status.Code(err) != codes.NotFound {
		t.Fatalf("unknown service: %v", err)
	}
}

func TestUnaryInterceptorRecoversPanic(t *testing.T) {
	icpt := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Boom"}

	_, err := icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("deadline guard not applied")
		}
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{nil, codes.OK},
		{fmt.Errorf("get: %w", domain.ErrRoomNotFound), codes.NotFound},
		{domain.ErrNotCreator, codes.PermissionDenied},
		{domain.ErrCanvasLocked, codes.FailedPrecondition},
		{domain.ErrEmptyMessage, codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Unavailable, "x"), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(tc.err)); got != tc.want {
			t.Errorf("toStatus(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
