// Package rpc serves backtests over gRPC.
//
// The service carries google.protobuf.Struct messages whose fields follow
// the JSON shape of RunRequest, SignalsRequest and their responses, so no
// generated stubs are needed.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "statarb.Backtester"

const (
	methodRun     = "/" + ServiceName + "/Run"
	methodSignals = "/" + ServiceName + "/Signals"
)

// RunRequest asks for a full pair backtest.
type RunRequest struct {
	Pair         string                    `json:"pair"`
	Price1       []float64                 `json:"price1"`
	Price2       []float64                 `json:"price2"`
	Timestamps   []string                  `json:"timestamps,omitempty"`
	Spread       spread.Options            `json:"spread"`
	ZScoreWindow int                       `json:"zscore_window,omitempty"`
	Long         *signal.Document          `json:"long,omitempty"`
	Short        *signal.Document          `json:"short,omitempty"`
	Simulation   backtest.SimulationConfig `json:"simulation"`
	SingleAsset  bool                      `json:"single_asset,omitempty"`
	Precision    int32                     `json:"precision,omitempty"`
}

// RunSpec converts the request into a runner input.
func (r *RunRequest) RunSpec() backtest.RunSpec {
	var ts []string
	if len(r.Timestamps) > 0 {
		ts = r.Timestamps
	}
	return backtest.RunSpec{
		Pair:         r.Pair,
		Prices:       &backtest.PriceData{Timestamps: ts, Price1: r.Price1, Price2: r.Price2},
		Spread:       r.Spread,
		ZScoreWindow: r.ZScoreWindow,
		Long:         r.Long,
		Short:        r.Short,
		Simulation:   r.Simulation,
		SingleAsset:  r.SingleAsset,
		Precision:    r.Precision,
	}
}

// NewRunRequest builds the request that reproduces spec on a server.
func NewRunRequest(spec backtest.RunSpec) *RunRequest {
	req := &RunRequest{
		Pair:         spec.Pair,
		Spread:       spec.Spread,
		ZScoreWindow: spec.ZScoreWindow,
		Long:         spec.Long,
		Short:        spec.Short,
		Simulation:   spec.Simulation,
		SingleAsset:  spec.SingleAsset,
		Precision:    spec.Precision,
	}
	if spec.Prices != nil {
		req.Timestamps = spec.Prices.Timestamps
		req.Price1 = spec.Prices.Price1
		req.Price2 = spec.Prices.Price2
	}
	return req
}

// SignalsRequest runs the engines over a deviation series. A null entry
// means no data at that step.
type SignalsRequest struct {
	Deviation []*float64       `json:"deviation"`
	Long      *signal.Document `json:"long,omitempty"`
	Short     *signal.Document `json:"short,omitempty"`
}

// SignalsResponse carries the per-direction and net positions.
type SignalsResponse struct {
	Long         []float64           `json:"long,omitempty"`
	Short        []float64           `json:"short,omitempty"`
	Net          []float64           `json:"net"`
	Transitions  []signal.Transition `json:"transitions,omitempty"`
	OverlapSteps int                 `json:"overlap_steps"`
}

// BacktesterServer is implemented by Server.
type BacktesterServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Signals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes statarb.Backtester for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktesterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Signals", Handler: signalsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "statarb/backtester.proto",
}

// RegisterBacktesterServer registers srv on s.
func RegisterBacktesterServer(s grpc.ServiceRegistrar, srv BacktesterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktesterServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRun}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BacktesterServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func signalsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktesterServer).Signals(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSignals}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BacktesterServer).Signals(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	return st, nil
}

// fromStruct decodes a Struct into out.
func fromStruct(st *structpb.Struct, out interface{}) error {
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	return nil
}
