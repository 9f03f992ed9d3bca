package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
)

// Client calls statarb.Backtester.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

// Run 请求一次回测
func (c *Client) Run(ctx context.Context, req *RunRequest) (*backtest.Report, error) {
	var report backtest.Report
	if err := c.invoke(ctx, methodRun, req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Signals 请求信号序列
func (c *Client) Signals(ctx context.Context, req *SignalsRequest) (*SignalsResponse, error) {
	var resp SignalsResponse
	if err := c.invoke(ctx, methodSignals, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, out interface{}) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, reply); err != nil {
		return err
	}
	return fromStruct(reply, out)
}
