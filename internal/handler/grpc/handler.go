// Package grpc exposes the read side of the assessment service over gRPC.
// Messages are google.protobuf.Struct values carrying the same JSON shapes
// as the HTTP API.
package grpc

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/windfall/engapp_service/internal/errors"
	"github.com/windfall/engapp_service/internal/middleware"
	"github.com/windfall/engapp_service/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "engapp.assessment.v1.AssessmentService"

// AssessmentServer is the server API for the AssessmentService.
type AssessmentServer interface {
	GetResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDashboard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckEligibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the AssessmentService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssessmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetResults", Handler: unaryHandler("GetResults", AssessmentServer.GetResults)},
		{MethodName: "GetDashboard", Handler: unaryHandler("GetDashboard", AssessmentServer.GetDashboard)},
		{MethodName: "CheckEligibility", Handler: unaryHandler("CheckEligibility", AssessmentServer.CheckEligibility)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engapp/assessment/v1/assessment.proto",
}

// RegisterAssessmentServer registers srv on s.
func RegisterAssessmentServer(s grpc.ServiceRegistrar, srv AssessmentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(AssessmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(AssessmentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(AssessmentServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Handler implements the gRPC service.
type Handler struct {
	log               zerolog.Logger
	assessmentService *service.AssessmentService
}

// NewHandler creates a new gRPC handler.
func NewHandler(log zerolog.Logger, assessmentService *service.AssessmentService) *Handler {
	return &Handler{
		log:               log,
		assessmentService: assessmentService,
	}
}

// GetResults implements the GetResults RPC. Request: {"session_id": "..."}.
func (h *Handler) GetResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := authenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := req.GetFields()["session_id"].GetStringValue()
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	h.log.Debug().Str("session_id", sessionID).Msg("GetResults called")

	session, err := h.assessmentService.GetResults(ctx, sessionID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(session)
}

// GetDashboard implements the GetDashboard RPC.
func (h *Handler) GetDashboard(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := authenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	dashboard, err := h.assessmentService.GetDashboardData(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dashboard)
}

// CheckEligibility implements the CheckEligibility RPC.
func (h *Handler) CheckEligibility(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := authenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	eligibility, err := h.assessmentService.CanStartAssessment(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(eligibility)
}

func authenticatedUser(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", status.Error(codes.Unauthenticated, "user not authenticated")
	}
	return userID, nil
}

func toStatus(err error) error {
	if appErr, ok := errors.As(err); ok {
		return appErr.GRPCStatus().Err()
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts v through its JSON form so RPC payloads match the HTTP API.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
