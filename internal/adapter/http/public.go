package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/caseflow/internal/app"
	"github.com/neomorfeo/caseflow/internal/domain"
)

// ServiceResponse is a public catalog entry.
type ServiceResponse struct {
	ProgramID         string   `json:"program_id" doc:"Program identifier, used to submit"`
	Name              string   `json:"name" doc:"Service name"`
	Description       string   `json:"description" doc:"Service description"`
	RequiredDocuments []string `json:"required_documents" doc:"Documents the citizen must provide"`
	EstimatedDays     int      `json:"estimated_days" doc:"Estimated processing time in days"`
	IsFree            bool     `json:"is_free" doc:"Whether the service is free of charge"`
	UpdatedAt         string   `json:"updated_at" doc:"Last publication timestamp (RFC 3339)"`
}

// SubmissionResponse is what a citizen gets back after submitting.
type SubmissionResponse struct {
	CaseID        string `json:"case_id" doc:"Protocol number of the submission"`
	State         string `json:"state" doc:"Current state"`
	QueuePosition *int   `json:"queue_position,omitempty" doc:"1-based waitlist position while pending"`
	SubmittedAt   string `json:"submitted_at" doc:"Submission timestamp (RFC 3339)"`
}

type ListServicesOutput struct {
	Body []ServiceResponse
}

type PublicSubmitInput struct {
	ProgramID string `path:"programId" doc:"Program ID"`
	Body      struct {
		Attributes map[string]any `json:"attributes,omitempty" doc:"Values the criteria are evaluated against"`
		Applicant  map[string]any `json:"applicant" doc:"Name, identification and contact of the applicant"`
	}
}

type PublicSubmitOutput struct {
	Body SubmissionResponse
}

func registerPublic(api huma.API, svc *app.ProgramService, registry *app.CaseRegistry, limiter *RateLimiter) {
	var throttled huma.Middlewares
	if limiter != nil {
		throttled = huma.Middlewares{limiter.Middleware(api)}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-public-services",
		Method:      http.MethodGet,
		Path:        "/api/v1/public/services",
		Summary:     "List services open to citizens",
		Tags:        []string{"Public"},
		Middlewares: throttled,
	}, func(ctx context.Context, _ *struct{}) (*ListServicesOutput, error) {
		entries, err := svc.PublicServices(ctx)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}

		resp := make([]ServiceResponse, len(entries))
		for i, e := range entries {
			docs := e.Descriptor.RequiredDocuments
			if docs == nil {
				docs = []string{}
			}
			resp[i] = ServiceResponse{
				ProgramID:         e.ProgramID,
				Name:              e.Descriptor.Name,
				Description:       e.Descriptor.Description,
				RequiredDocuments: docs,
				EstimatedDays:     e.Descriptor.EstimatedDays,
				IsFree:            e.Descriptor.IsFree,
				UpdatedAt:         formatTime(e.UpdatedAt),
			}
		}
		return &ListServicesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-public-case",
		Method:      http.MethodPost,
		Path:        "/api/v1/public/services/{programId}/submissions",
		Summary:     "Submit a request to a public service",
		Tags:        []string{"Public"},
		Middlewares: throttled,
	}, func(ctx context.Context, input *PublicSubmitInput) (*PublicSubmitOutput, error) {
		c, err := registry.Submit(ctx, app.SubmitCaseRequest{
			ProgramID:  input.ProgramID,
			Attributes: input.Body.Attributes,
			Applicant:  input.Body.Applicant,
			Origin:     domain.OriginPublic,
			ActorID:    publicActor,
		})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &PublicSubmitOutput{Body: SubmissionResponse{
			CaseID:        c.ID,
			State:         string(c.State),
			QueuePosition: c.QueuePosition,
			SubmittedAt:   formatTime(c.SubmittedAt),
		}}, nil
	})
}
