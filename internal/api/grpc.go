package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
	"github.com/SimonWaldherr/bloomd/internal/filterstore"
)

// jsonCodec is a hand-written grpc.encoding.Codec so the service needs no
// protoc step: every message is a plain Go struct marshaled as JSON.
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// RegisterJSONCodec installs the JSON codec globally; call once at startup
// before creating any grpc.Server or grpc.ClientConn that uses it.
func RegisterJSONCodec() { encoding.RegisterCodec(jsonCodec{}) }

// FilterServer is the gRPC-facing operation set, manually describing the
// same create/drop/clear/unmap/flush/check_keys/set_keys/list_all/
// list_cold/info contract as the HTTP transport.
type FilterServer interface {
	Create(context.Context, *CreateRequest) (*StatusResponse, error)
	Drop(context.Context, *NameRequest) (*StatusResponse, error)
	Clear(context.Context, *NameRequest) (*StatusResponse, error)
	Unmap(context.Context, *NameRequest) (*StatusResponse, error)
	Flush(context.Context, *NameRequest) (*StatusResponse, error)
	CheckKeys(context.Context, *NamedKeysRequest) (*KeysResponse, error)
	SetKeys(context.Context, *NamedKeysRequest) (*KeysResponse, error)
	ListAll(context.Context, *Empty) (*ListResponse, error)
	ListCold(context.Context, *Empty) (*ListResponse, error)
	Info(context.Context, *NameRequest) (*InfoResponse, error)
}

// NameRequest, NamedKeysRequest and Empty are the gRPC-only message shapes
// that need a filter name alongside (or instead of) the HTTP path variable.
type NameRequest struct {
	Name string `json:"name"`
}

type NamedKeysRequest struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

type Empty struct{}

// RegisterFilterServer wires srv into s using a manually constructed
// grpc.ServiceDesc: every method, request type, and dispatch function is
// written out by hand so the service needs no protoc-generated stubs.
func RegisterFilterServer(s *grpc.Server, srv FilterServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "bloomd.FilterService",
		HandlerType: (*FilterServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Create", Handler: filterCreateHandler},
			{MethodName: "Drop", Handler: filterDropHandler},
			{MethodName: "Clear", Handler: filterClearHandler},
			{MethodName: "Unmap", Handler: filterUnmapHandler},
			{MethodName: "Flush", Handler: filterFlushHandler},
			{MethodName: "CheckKeys", Handler: filterCheckKeysHandler},
			{MethodName: "SetKeys", Handler: filterSetKeysHandler},
			{MethodName: "ListAll", Handler: filterListAllHandler},
			{MethodName: "ListCold", Handler: filterListColdHandler},
			{MethodName: "Info", Handler: filterInfoHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "bloomd",
	}, srv)
}

func filterCreateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Create(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Create"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Create(ctx, req.(*CreateRequest)) }
	return interceptor(ctx, in, info, handler)
}

func filterDropHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Drop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Drop"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Drop(ctx, req.(*NameRequest)) }
	return interceptor(ctx, in, info, handler)
}

func filterClearHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Clear(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Clear"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Clear(ctx, req.(*NameRequest)) }
	return interceptor(ctx, in, info, handler)
}

func filterUnmapHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Unmap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Unmap"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Unmap(ctx, req.(*NameRequest)) }
	return interceptor(ctx, in, info, handler)
}

func filterFlushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Flush(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Flush"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Flush(ctx, req.(*NameRequest)) }
	return interceptor(ctx, in, info, handler)
}

func filterCheckKeysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NamedKeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).CheckKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/CheckKeys"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FilterServer).CheckKeys(ctx, req.(*NamedKeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func filterSetKeysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NamedKeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).SetKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/SetKeys"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FilterServer).SetKeys(ctx, req.(*NamedKeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func filterListAllHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).ListAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/ListAll"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).ListAll(ctx, req.(*Empty)) }
	return interceptor(ctx, in, info, handler)
}

func filterListColdHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).ListCold(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/ListCold"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).ListCold(ctx, req.(*Empty)) }
	return interceptor(ctx, in, info, handler)
}

func filterInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FilterServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/bloomd.FilterService/Info"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(FilterServer).Info(ctx, req.(*NameRequest)) }
	return interceptor(ctx, in, info, handler)
}

// grpcService implements FilterServer directly against a *filterstore.Manager,
// the gRPC-transport twin of Server in http.go.
type grpcService struct {
	mgr *filterstore.Manager
}

// NewGRPCService builds the FilterServer implementation bound to mgr.
func NewGRPCService(mgr *filterstore.Manager) FilterServer {
	return &grpcService{mgr: mgr}
}

func (g *grpcService) Create(ctx context.Context, req *CreateRequest) (*StatusResponse, error) {
	var cfg *bloomfilter.Config
	if req.Capacity != 0 || req.Probability != 0 || req.InMemory {
		c := bloomfilter.DefaultConfig()
		if req.Capacity != 0 {
			c.Capacity = req.Capacity
		}
		if req.Probability != 0 {
			c.Probability = req.Probability
		}
		c.InMemory = req.InMemory
		cfg = &c
	}
	return statusReply(g.mgr.Create(req.Name, cfg))
}

func (g *grpcService) Drop(ctx context.Context, req *NameRequest) (*StatusResponse, error) {
	return statusReply(g.mgr.Drop(req.Name))
}

func (g *grpcService) Clear(ctx context.Context, req *NameRequest) (*StatusResponse, error) {
	return statusReply(g.mgr.Clear(req.Name))
}

func (g *grpcService) Unmap(ctx context.Context, req *NameRequest) (*StatusResponse, error) {
	return statusReply(g.mgr.Unmap(req.Name))
}

func (g *grpcService) Flush(ctx context.Context, req *NameRequest) (*StatusResponse, error) {
	return statusReply(g.mgr.Flush(req.Name))
}

func (g *grpcService) CheckKeys(ctx context.Context, req *NamedKeysRequest) (*KeysResponse, error) {
	results, st := g.mgr.CheckKeys(req.Name, toByteKeys(req.Keys))
	if st != filterstore.StatusOK {
		return nil, statusToGRPCError(st)
	}
	return &KeysResponse{Results: results}, nil
}

func (g *grpcService) SetKeys(ctx context.Context, req *NamedKeysRequest) (*KeysResponse, error) {
	results, st := g.mgr.SetKeys(req.Name, toByteKeys(req.Keys))
	if st != filterstore.StatusOK {
		return nil, statusToGRPCError(st)
	}
	return &KeysResponse{Results: results}, nil
}

func (g *grpcService) ListAll(ctx context.Context, _ *Empty) (*ListResponse, error) {
	return &ListResponse{Names: g.mgr.ListAll()}, nil
}

func (g *grpcService) ListCold(ctx context.Context, _ *Empty) (*ListResponse, error) {
	return &ListResponse{Names: g.mgr.ListCold()}, nil
}

func (g *grpcService) Info(ctx context.Context, req *NameRequest) (*InfoResponse, error) {
	var info InfoResponse
	st := g.mgr.WithFilter(req.Name, func(f *bloomfilter.Filter) {
		info = InfoResponse{
			Name:        req.Name,
			Capacity:    f.Capacity(),
			Probability: f.Probability(),
			Count:       f.Count(),
			Proxied:     f.IsProxied(),
		}
	})
	if st != filterstore.StatusOK {
		return nil, statusToGRPCError(st)
	}
	return &info, nil
}

func statusReply(st filterstore.Status) (*StatusResponse, error) {
	if st != filterstore.StatusOK {
		return nil, statusToGRPCError(st)
	}
	return &StatusResponse{Status: st.String()}, nil
}

func statusToGRPCError(st filterstore.Status) error {
	switch st {
	case filterstore.StatusNotFound:
		return status.Error(codes.NotFound, st.String())
	case filterstore.StatusAlreadyExists:
		return status.Error(codes.AlreadyExists, st.String())
	case filterstore.StatusNotProxied:
		return status.Error(codes.FailedPrecondition, st.String())
	default:
		return status.Error(codes.Internal, st.String())
	}
}
