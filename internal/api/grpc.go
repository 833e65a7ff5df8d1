package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/logging"
	"slotbook/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	availabilityServiceName = "slotbook.availability.v1.AvailabilityService"

	methodGetAvailability     = "/" + availabilityServiceName + "/GetAvailability"
	methodGetAvailabilityBulk = "/" + availabilityServiceName + "/GetAvailabilityBulk"
)

// AvailabilityServer is the read-only availability API served over gRPC.
// Messages are well-known protobuf types so no generated code is needed.
type AvailabilityServer interface {
	GetAvailability(ctx context.Context, date *wrapperspb.StringValue) (*structpb.Struct, error)
	GetAvailabilityBulk(ctx context.Context, dates *structpb.ListValue) (*structpb.ListValue, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: getAvailabilityHandler},
		{MethodName: "GetAvailabilityBulk", Handler: getAvailabilityBulkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/availability/v1/availability.proto",
}

func getAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAvailability}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetAvailability(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getAvailabilityBulkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetAvailabilityBulk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAvailabilityBulk}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetAvailabilityBulk(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAvailabilityServer attaches srv to s.
func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

type availabilityGRPC struct {
	availability availabilityAPI
}

// NewAvailabilityGRPC adapts the availability resolver to AvailabilityServer.
func NewAvailabilityGRPC(a availabilityAPI) AvailabilityServer {
	return &availabilityGRPC{availability: a}
}

func (g *availabilityGRPC) GetAvailability(ctx context.Context, date *wrapperspb.StringValue) (*structpb.Struct, error) {
	if date.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, msgDateRequired)
	}
	slots, err := g.availability.Resolve(ctx, date.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return dayStruct(date.GetValue(), slots)
}

func (g *availabilityGRPC) GetAvailabilityBulk(ctx context.Context, dates *structpb.ListValue) (*structpb.ListValue, error) {
	list := make([]string, 0, len(dates.GetValues()))
	for _, v := range dates.GetValues() {
		d := v.GetStringValue()
		if d == "" {
			return nil, status.Error(codes.InvalidArgument, "dates must be non-empty strings")
		}
		list = append(list, d)
	}
	if len(list) == 0 {
		return nil, status.Error(codes.InvalidArgument, "dates is required")
	}

	byDate, err := g.availability.ResolveMany(ctx, list)
	if err != nil {
		return nil, grpcError(err)
	}

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(list))}
	for _, d := range list {
		day, err := dayStruct(d, byDate[d])
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(day))
	}
	return out, nil
}

func dayStruct(date string, slots []string) (*structpb.Struct, error) {
	vals := make([]any, len(slots))
	for i, s := range slots {
		vals[i] = s
	}
	st, err := structpb.NewStruct(map[string]any{"date": date, "slots": vals})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func grpcError(err error) error {
	if errors.Is(err, service.ErrValidation) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, msgInternal)
}

type GRPCServer struct {
	server   *grpc.Server
	listener net.Listener
	log      *zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, availability availabilityAPI, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	srv, err := newGRPCServer(cfg, availability, logger)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}

	return &GRPCServer{server: srv, listener: lis, log: logging.Component(logger, "grpc")}, nil
}

func newGRPCServer(cfg config.APIConfig, availability availabilityAPI, logger *zerolog.Logger) (*grpc.Server, error) {
	auth := NewAuthInterceptor(cfg)
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor(logger), auth.Unary()),
	}
	if cfg.GRPC.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	RegisterAvailabilityServer(srv, NewAvailabilityGRPC(availability))
	if cfg.GRPC.Reflection {
		reflection.Register(srv)
	}
	return srv, nil
}

func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("grpc tls enabled but cert_file/key_file not set")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load grpc tls keypair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.RequireClientCert {
		if cfg.ClientCAFile == "" {
			return nil, errors.New("grpc tls require_client_cert=true but client_ca_file not set")
		}
		caPEM, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read client_ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("failed to parse client_ca_file PEM")
		}
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		tlsCfg.ClientCAs = pool
	}

	return tlsCfg, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight calls, forcing a stop once ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
