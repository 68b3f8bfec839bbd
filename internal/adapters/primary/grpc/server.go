package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

const (
	ServiceName   = "feed.v1.FeedEngine"
	GetFeedMethod = "/" + ServiceName + "/GetFeed"
)

// FeedEngineServer est le contrat du service gRPC.
// Les messages sont des google.protobuf.Struct : mêmes champs que l'API HTTP.
type FeedEngineServer interface {
	GetFeed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc est écrit à la main : pas de stub généré pour ce service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FeedEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetFeed", Handler: getFeedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "feed/v1/feed_engine.proto",
}

func getFeedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedEngineServer).GetFeed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetFeedMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedEngineServer).GetFeed(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	service  ports.FeedService
	identity ports.IdentityResolver
}

func NewServer(service ports.FeedService, identity ports.IdentityResolver) *Server {
	return &Server{service: service, identity: identity}
}

func (s *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

func (s *Server) GetFeed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	req := domain.FeedRequest{
		Type:     domain.FeedType(fields["type"].GetStringValue()),
		OwnerID:  fields["ownerId"].GetStringValue(),
		Cursor:   fields["cursor"].GetStringValue(),
		ClientIP: peerIP(ctx),
	}

	if v, ok := fields["pageSize"]; ok {
		size, err := pageSize(v)
		if err != nil {
			return nil, toStatus(ctx, req, err)
		}
		req.PageSize = size
	}

	viewerID, err := s.identity.Resolve(ctx, bearerFromMetadata(ctx))
	if err != nil {
		return nil, toStatus(ctx, req, fmt.Errorf("resolve identity: %w", err))
	}
	req.ViewerID = viewerID

	page, err := s.service.GetFeed(ctx, req)
	if err != nil {
		return nil, toStatus(ctx, req, err)
	}

	out, err := pageToStruct(page)
	if err != nil {
		return nil, toStatus(ctx, req, err)
	}
	return out, nil
}

// pageSize accepte un nombre entier ou une chaîne numérique
func pageSize(v *structpb.Value) (int, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != float64(int(n)) {
			return 0, domain.NewValidationError("pageSize", "must be an integer")
		}
		return int(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(kind.StringValue)
		if err != nil {
			return 0, domain.NewValidationError("pageSize", "must be an integer")
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, domain.NewValidationError("pageSize", "must be an integer")
	}
}

// pageToStruct passe par JSON pour garder exactement la forme de la réponse HTTP
func pageToStruct(page *domain.Page) (*structpb.Struct, error) {
	raw, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}
	m["success"] = true
	return structpb.NewStruct(m)
}

// toStatus traduit les erreurs domaine en codes gRPC, sans fuite de détail interne
func toStatus(ctx context.Context, req domain.FeedRequest, err error) error {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		var vErr *domain.ValidationError
		errors.As(err, &vErr)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case domain.KindAuthRequired:
		return status.Error(codes.Unauthenticated, "authentication required")
	case domain.KindRateLimited:
		var rlErr *domain.RateLimitedError
		errors.As(err, &rlErr)
		_ = grpc.SetTrailer(ctx, metadata.Pairs("retry-after", strconv.Itoa(rlErr.RetryAfterSeconds())))
		return status.Error(codes.ResourceExhausted, "too many requests")
	default:
		slog.Error("Failed to get feed",
			"feed", req.Type,
			"owner", req.OwnerID,
			"viewer", req.ViewerID,
			"cursor", req.Cursor,
			"error", err,
		)
		return status.Error(codes.Internal, "failed to fetch feed")
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 || !strings.HasPrefix(values[0], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}
