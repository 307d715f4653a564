//go:build linux

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tiagocoutinho/linuxgo/internal/updater"
	"github.com/tiagocoutinho/linuxgo/internal/version"
)

// VersionResponse reports build information.
type VersionResponse struct {
	Body version.Info
}

// UpdateCheckResponse reports whether a newer release exists.
type UpdateCheckResponse struct {
	Body updater.UpdateInfo
}

// UpdateStatusResponse reports the updater state machine.
type UpdateStatusResponse struct {
	Body updater.Status
}

// UpdateMessageResponse acknowledges an apply or rollback.
type UpdateMessageResponse struct {
	Body struct {
		Message string `json:"message" example:"Update applied, restarting..." doc:"Status message"`
	}
}

func (s *Server) registerUpdateRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/update/version",
		Summary:     "Version",
		Tags:        []string{"update"},
	}, func(_ context.Context, _ *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Tags:        []string{"update"},
		Errors:      []int{404, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &UpdateCheckResponse{Body: *info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Tags:        []string{"update"},
	}, func(ctx context.Context, _ *struct{}) (*UpdateStatusResponse, error) {
		return &UpdateStatusResponse{Body: *svc.GetStatus(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and apply the available update. Triggers a restart.",
		Tags:        []string{"update"},
		Errors:      []int{400, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*UpdateMessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		resp := &UpdateMessageResponse{}
		resp.Body.Message = "Update applied, restarting..."
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Restore the previous binary from backup. Triggers a restart.",
		Tags:        []string{"update"},
		Errors:      []int{404, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*UpdateMessageResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		resp := &UpdateMessageResponse{}
		resp.Body.Message = "Rollback completed, restarting..."
		return resp, nil
	})
}

func mapUpdateError(err error) error {
	var updateErr *updater.Error
	if errors.As(err, &updateErr) {
		switch updateErr.Code {
		case updater.ErrCodeInvalidState:
			return huma.Error409Conflict(updateErr.Message)
		case updater.ErrCodeNoUpdate:
			return huma.Error400BadRequest(updateErr.Message)
		case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
			return huma.Error404NotFound(updateErr.Message)
		case updater.ErrCodeDisabled:
			return huma.Error503ServiceUnavailable(updateErr.Message)
		default:
			return huma.Error500InternalServerError(updateErr.Message)
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
