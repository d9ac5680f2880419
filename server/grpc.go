package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	ctxpkg "github.com/JamesWemyss/psyclone/context"
)

// ServiceName is the gRPC service exposing the conversational surfaces.
// Requests and responses are google.protobuf.Struct values shaped like the
// HTTP JSON bodies.
const ServiceName = "psyclone.v1.Psyclone"

// SourceMetadataKey names the calling surface in gRPC metadata.
const SourceMetadataKey = "x-psyclone-source"

// Full method names.
const (
	MethodAsk       = "/" + ServiceName + "/Ask"
	MethodChat      = "/" + ServiceName + "/Chat"
	MethodAssistant = "/" + ServiceName + "/Assistant"
	MethodLists     = "/" + ServiceName + "/Lists"
)

// rpcService is the handler type checked by grpc.RegisterService.
type rpcService interface {
	rpcAsk(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	rpcChat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	rpcAssistant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	rpcLists(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*rpcService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ask", rpcService.rpcAsk),
		unary("Chat", rpcService.rpcChat),
		unary("Assistant", rpcService.rpcAssistant),
		unary("Lists", rpcService.rpcLists),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "psyclone/v1/psyclone.proto",
}

func unary(name string, call func(rpcService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(rpcService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(rpcService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (s *Server) newGRPCServer() *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, sourceInterceptor))
	gs.RegisterService(&serviceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	reflection.Register(gs)
	return gs
}

// loggingInterceptor logs unary RPC calls.
func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error().
			Str("method", info.FullMethod).
			Dur("duration", duration).
			Err(err).
			Msg("RPC failed")
	} else {
		s.logger.Debug().
			Str("method", info.FullMethod).
			Dur("duration", duration).
			Msg("RPC completed")
	}
	return resp, err
}

// sourceInterceptor copies the caller's surface from metadata into ctx.
func sourceInterceptor(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(SourceMetadataKey); len(v) > 0 && v[0] != "" {
			ctx = ctxpkg.WithSource(ctx, v[0])
		}
	}
	return handler(ctx, req)
}

func messageOf(in *structpb.Struct) (string, error) {
	msg := in.GetFields()["message"].GetStringValue()
	if msg == "" {
		return "", status.Error(codes.InvalidArgument, "message is required")
	}
	return msg, nil
}

func (s *Server) rpcAsk(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := messageOf(in)
	if err != nil {
		return nil, err
	}
	resp, err := s.deps.Dispatcher.Ask(ctx, msg)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

func (s *Server) rpcChat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := messageOf(in)
	if err != nil {
		return nil, err
	}
	resp, err := s.deps.Dispatcher.Chat(ctx, msg)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

func (s *Server) rpcAssistant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := messageOf(in)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Orchestrator.Run(ctxpkg.WithSource(ctx, "assistant"), msg)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

func (s *Server) rpcLists(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	lists, err := s.deps.Executors.ListActive(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(lists)
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// grpcError maps service errors to status codes. Turn failures carry the
// user-facing message.
func grpcError(err error) error {
	var te *agent.TurnError
	switch {
	case actions.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &te) && te.State == agent.StateTimedOut:
		return status.Error(codes.DeadlineExceeded, te.UserMessage())
	case errors.As(err, &te):
		return status.Error(codes.Internal, te.UserMessage())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
}
