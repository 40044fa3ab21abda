// Package handler exposes onboarding preferences and the profile image as account.v1.ProfileService.
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/platform/rbac"
	"account-identity-core/internal/platform/rpc"
	"account-identity-core/internal/profile"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "account.v1.ProfileService"

// MaxRequestBytes bounds an upload request on the wire: base64 inflates the image by a third.
const MaxRequestBytes = profile.MaxImageBytes*4/3 + 64<<10

type UpdatePreferencesRequest struct {
	// AccountID defaults to the caller.
	AccountID        string                          `json:"accountId,omitempty"`
	StylePreferences []accountdomain.StylePreference `json:"stylePreferences,omitempty"`
	Size             accountdomain.Size              `json:"size,omitempty"`
	// ExpectedVersion, when non-zero, rejects the write if the account changed since it was read.
	ExpectedVersion int64 `json:"expectedVersion,omitempty"`
}

type UploadProfileImageRequest struct {
	AccountID string `json:"accountId,omitempty"`
	// Image is the raw file; JSON carries it base64-encoded.
	Image []byte `json:"image"`
}

type DeleteProfileImageRequest struct {
	AccountID string `json:"accountId,omitempty"`
}

type ProfileResponse struct {
	Account *accountdomain.Summary `json:"account"`
}

// ProfileServiceServer is the server API for ProfileService.
type ProfileServiceServer interface {
	UpdatePreferences(context.Context, *UpdatePreferencesRequest) (*ProfileResponse, error)
	UploadProfileImage(context.Context, *UploadProfileImageRequest) (*ProfileResponse, error)
	DeleteProfileImage(context.Context, *DeleteProfileImageRequest) (*ProfileResponse, error)
}

// Server implements ProfileService. If svc is nil, all RPCs return Unimplemented.
type Server struct {
	svc   *profile.Service
	authz rbac.Authorizer
}

// NewServer returns a new Profile gRPC server.
func NewServer(svc *profile.Service, authz rbac.Authorizer) *Server {
	return &Server{svc: svc, authz: authz}
}

// ServiceDesc describes ProfileService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProfileServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "UpdatePreferences", ProfileServiceServer.UpdatePreferences),
		rpc.Unary(ServiceName, "UploadProfileImage", ProfileServiceServer.UploadProfileImage),
		rpc.Unary(ServiceName, "DeleteProfileImage", ProfileServiceServer.DeleteProfileImage),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "account/v1/profile.json",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv ProfileServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func (s *Server) UpdatePreferences(ctx context.Context, req *UpdatePreferencesRequest) (*ProfileResponse, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method UpdatePreferences not implemented")
	}
	accountID, err := rbac.RequireOwner(ctx, s.authz, "update_preferences", req.AccountID)
	if err != nil {
		return nil, err
	}
	a, err := s.svc.UpdatePreferences(ctx, accountID, profile.Preferences{Styles: req.StylePreferences, Size: req.Size}, req.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{Account: a.Summary()}, nil
}

func (s *Server) UploadProfileImage(ctx context.Context, req *UploadProfileImageRequest) (*ProfileResponse, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method UploadProfileImage not implemented")
	}
	accountID, err := rbac.RequireOwner(ctx, s.authz, "upload_profile_image", req.AccountID)
	if err != nil {
		return nil, err
	}
	a, err := s.svc.UploadProfileImage(ctx, accountID, req.Image)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{Account: a.Summary()}, nil
}

func (s *Server) DeleteProfileImage(ctx context.Context, req *DeleteProfileImageRequest) (*ProfileResponse, error) {
	if s.svc == nil {
		return nil, status.Error(codes.Unimplemented, "method DeleteProfileImage not implemented")
	}
	accountID, err := rbac.RequireOwner(ctx, s.authz, "delete_profile_image", req.AccountID)
	if err != nil {
		return nil, err
	}
	a, err := s.svc.DeleteProfileImage(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{Account: a.Summary()}, nil
}
