package agent

import (
	"context"
	"errors"
	"os"

	otaapiv1alpha1 "github.com/uptime-industries/ota-agent/api/otaapi/v1alpha1"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
	"github.com/uptime-industries/ota-agent/pkg/socupdate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OtaAgent implementing the OtaAgentServiceServer
type agentGrpcService struct {
	otaapiv1alpha1.UnimplementedOtaAgentServiceServer

	Agent OtaAgent
}

// NewGrpcServiceFor creates a new gRPC service for a given agent
func NewGrpcServiceFor(agent OtaAgent) *agentGrpcService {
	return &agentGrpcService{
		Agent: agent,
	}
}

// grpcError maps agent errors onto gRPC status codes.
func grpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOtaModeDisabled),
		errors.Is(err, ErrSessionRunning),
		errors.Is(err, mcuupdate.ErrState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidRobotVersion),
		errors.Is(err, socupdate.ErrEmptyBundle),
		errors.Is(err, mcuupdate.ErrFile),
		errors.Is(err, os.ErrNotExist):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotRunning):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// SetRobotInfo records the robot version
func (service *agentGrpcService) SetRobotInfo(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, grpcError(service.Agent.SetRobotInfo(ctx, req.GetValue()))
}

func (service *agentGrpcService) SetOtaMode(ctx context.Context, req *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, grpcError(service.Agent.SetOtaMode(ctx, req.GetValue()))
}

// StartUpdate starts a session for the given bundle directory
func (service *agentGrpcService) StartUpdate(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "update directory required")
	}
	return &emptypb.Empty{}, grpcError(service.Agent.StartUpdate(ctx, req.GetValue()))
}

func (service *agentGrpcService) GetUpdateStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := service.Agent.GetUpdateStatus(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return StatusToStruct(st), nil
}

func (service *agentGrpcService) SetActive(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, grpcError(service.Agent.SetActive(ctx))
}

func (service *agentGrpcService) GetActive(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	result, err := service.Agent.GetActive(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.UInt32(uint32(result)), nil
}

// StatusToStruct encodes a status for the wire.
func StatusToStruct(st Status) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"stage":    structpb.NewNumberValue(float64(st.Stage)),
		"progress": structpb.NewNumberValue(float64(st.Progress)),
		"phase":    structpb.NewStringValue(st.Phase),
		"error":    structpb.NewStringValue(st.Error),
	}}
}

// StatusFromStruct decodes a status received over the wire. Missing fields
// keep their zero value.
func StatusFromStruct(s *structpb.Struct) Status {
	fields := s.GetFields()
	return Status{
		Stage:    checkpoint.Stage(fields["stage"].GetNumberValue()),
		Progress: int(fields["progress"].GetNumberValue()),
		Phase:    fields["phase"].GetStringValue(),
		Error:    fields["error"].GetStringValue(),
	}
}
