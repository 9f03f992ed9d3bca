package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Server implements statarb.Backtester on top of a backtest.Runner.
type Server struct {
	runner     *backtest.Runner
	log        *logrus.Entry
	metrics    *metrics.Collector
	grpcServer *grpc.Server
}

// NewServer creates the service and its grpc.Server.
func NewServer(runner *backtest.Runner, logger *logrus.Logger, collector *metrics.Collector, opts ...grpc.ServerOption) *Server {
	s := &Server{
		runner:  runner,
		log:     logging.WithComponent(logger, "RPC"),
		metrics: collector,
	}
	opts = append(opts, grpc.UnaryInterceptor(s.observe))
	s.grpcServer = grpc.NewServer(opts...)
	RegisterBacktesterServer(s.grpcServer, s)
	return s
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infof("gRPC server listening on %s", lis.Addr())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop drains in-flight calls and stops the server.
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server...")
	s.grpcServer.GracefulStop()
}

// Run 执行一次完整回测
func (s *Server) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RunRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	out, err := s.runner.Run(ctx, req.RunSpec())
	if err != nil {
		return nil, toStatus(err)
	}

	st, err := toStruct(out.Report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// Signals 计算信号序列
func (s *Server) Signals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}
	var req SignalsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := computeSignals(&req)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func computeSignals(req *SignalsRequest) (*SignalsResponse, error) {
	if req.Long == nil && req.Short == nil {
		return nil, fmt.Errorf("%w: neither a long nor a short signal", stats.ErrConfiguration)
	}

	deviation := make([]float64, len(req.Deviation))
	for i, v := range req.Deviation {
		if v == nil {
			deviation[i] = math.NaN()
		} else {
			deviation[i] = *v
		}
	}

	resp := &SignalsResponse{}
	var positions [][]float64
	for _, doc := range []*signal.Document{req.Long, req.Short} {
		if doc == nil {
			continue
		}
		engine, err := doc.Engine()
		if err != nil {
			return nil, err
		}
		trace, err := engine.Walk(deviation)
		if err != nil {
			return nil, err
		}
		if engine.Direction() == signal.Long {
			resp.Long = trace.Positions
		} else {
			resp.Short = trace.Positions
		}
		resp.Transitions = append(resp.Transitions, trace.Transitions...)
		positions = append(positions, trace.Positions)
	}

	netPos, err := signal.Consolidate(positions...)
	if err != nil {
		return nil, err
	}
	overlap, err := signal.OverlapSteps(positions...)
	if err != nil {
		return nil, err
	}
	resp.Net = netPos
	resp.OverlapSteps = overlap
	return resp, nil
}

// toStatus maps the error taxonomy onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, stats.ErrConfiguration),
		errors.Is(err, stats.ErrParameter),
		errors.Is(err, stats.ErrLengthMismatch),
		errors.Is(err, stats.ErrEmptySeries):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) observe(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	code := status.Code(err)
	s.metrics.ObserveRPC(info.FullMethod, code.String())
	if err != nil {
		s.log.WithField("method", info.FullMethod).Warnf("Request failed: %v", err)
	}
	return resp, err
}
