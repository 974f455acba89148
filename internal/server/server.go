package server

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sumanthpn07/lazyApply/internal/interrupt"
	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/internal/orchestrator"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// Queue is the part of the orchestrator the service drives.
type Queue interface {
	Enqueue(refs ...types.JobRef) int
	Run() bool
	Pause()
	Resume() bool
	Clear() int
	Cancel()
	Status() orchestrator.Status
	ResumeAfterAuth() (orchestrator.ResumeResult, error)
}

// EnqueueResult is the Enqueue response.
type EnqueueResult struct {
	Added   int  `json:"added"`
	Started bool `json:"started"`
}

// Server implements ControlServer over a Queue.
type Server struct {
	q         Queue
	autoStart bool
	log       *zap.SugaredLogger
}

// New creates the service. With autoStart, Enqueue starts the loop.
func New(q Queue, autoStart bool, log *zap.SugaredLogger) *Server {
	return &Server{q: q, autoStart: autoStart, log: logger.OrNop(log)}
}

// Register attaches the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(s.logCalls))
	s.Register(gs)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()
	s.log.Infow("Control service listening", logger.FieldAddress, lis.Addr().String())

	select {
	case err := <-errCh:
		return errors.Wrap(err, "control service")
	case <-ctx.Done():
		gs.GracefulStop()
		return nil
	}
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warnw("Control call failed", "method", info.FullMethod, logger.FieldError, err)
	} else {
		s.log.Debugw("Control call", "method", info.FullMethod, logger.FieldDurationMS, time.Since(start).Milliseconds())
	}
	return resp, err
}

// Enqueue implements ControlServer. The request carries {"refs": [...]}.
func (s *Server) Enqueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	refs, err := refsFrom(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := EnqueueResult{Added: s.q.Enqueue(refs...)}
	if s.autoStart {
		res.Started = s.q.Run()
	}
	return toStruct(res)
}

// Pause implements ControlServer.
func (s *Server) Pause(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.q.Pause()
	return toStruct(s.q.Status())
}

// Resume implements ControlServer.
func (s *Server) Resume(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]bool{"started": s.q.Resume()})
}

// Clear implements ControlServer.
func (s *Server) Clear(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]int{"cleared": s.q.Clear()})
}

// Cancel implements ControlServer.
func (s *Server) Cancel(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.q.Cancel()
	return toStruct(s.q.Status())
}

// Status implements ControlServer.
func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.q.Status())
}

// ResumeAfterAuth implements ControlServer.
func (s *Server) ResumeAfterAuth(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.q.ResumeAfterAuth()
	if errors.Is(err, interrupt.ErrNothingToResume) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(res)
}

func refsFrom(req *structpb.Struct) ([]types.JobRef, error) {
	list := req.GetFields()["refs"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, errors.New("refs must be a non-empty list")
	}
	refs := make([]types.JobRef, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		ref := v.GetStringValue()
		if ref == "" {
			return nil, errors.New("refs must be non-empty strings")
		}
		refs = append(refs, types.JobRef(ref))
	}
	return refs, nil
}
