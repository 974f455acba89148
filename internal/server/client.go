package server

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sumanthpn07/lazyApply/internal/orchestrator"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// Client calls a running daemon.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Enqueue adds refs to the daemon's queue.
func (c *Client) Enqueue(ctx context.Context, refs ...types.JobRef) (EnqueueResult, error) {
	vals := make([]any, 0, len(refs))
	for _, r := range refs {
		vals = append(vals, string(r))
	}
	req, err := structpb.NewStruct(map[string]any{"refs": vals})
	if err != nil {
		return EnqueueResult{}, errors.Wrap(err, "encode refs")
	}
	var res EnqueueResult
	err = c.call(ctx, "Enqueue", req, &res)
	return res, err
}

// Pause pauses the queue and returns the resulting status.
func (c *Client) Pause(ctx context.Context) (orchestrator.Status, error) {
	var st orchestrator.Status
	err := c.call(ctx, "Pause", &emptypb.Empty{}, &st)
	return st, err
}

// Resume unpauses the queue and reports whether a loop was started.
func (c *Client) Resume(ctx context.Context) (bool, error) {
	var res struct {
		Started bool `json:"started"`
	}
	err := c.call(ctx, "Resume", &emptypb.Empty{}, &res)
	return res.Started, err
}

// Clear empties the queue and returns how many items were dropped.
func (c *Client) Clear(ctx context.Context) (int, error) {
	var res struct {
		Cleared int `json:"cleared"`
	}
	err := c.call(ctx, "Clear", &emptypb.Empty{}, &res)
	return res.Cleared, err
}

// Cancel aborts the queue and returns the resulting status.
func (c *Client) Cancel(ctx context.Context) (orchestrator.Status, error) {
	var st orchestrator.Status
	err := c.call(ctx, "Cancel", &emptypb.Empty{}, &st)
	return st, err
}

// Status fetches the queue status.
func (c *Client) Status(ctx context.Context) (orchestrator.Status, error) {
	var st orchestrator.Status
	err := c.call(ctx, "Status", &emptypb.Empty{}, &st)
	return st, err
}

// ResumeAfterAuth signals that the operator has signed in.
func (c *Client) ResumeAfterAuth(ctx context.Context) (orchestrator.ResumeResult, error) {
	var res orchestrator.ResumeResult
	err := c.call(ctx, "ResumeAfterAuth", &emptypb.Empty{}, &res)
	return res, err
}

func (c *Client) call(ctx context.Context, method string, req any, out any) error {
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}
