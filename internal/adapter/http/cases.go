package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/caseflow/internal/app"
	"github.com/neomorfeo/caseflow/internal/domain"
)

// TransitionResponse is one entry of a case's history.
type TransitionResponse struct {
	From    string `json:"from,omitempty" doc:"Previous state, empty for the submission entry"`
	To      string `json:"to" doc:"New state"`
	At      string `json:"at" doc:"Transition timestamp (RFC 3339)"`
	ActorID string `json:"actor_id" doc:"Who performed the transition"`
	Note    string `json:"note,omitempty" doc:"Free-text note"`
}

// ReservationResponse is the budget hold of a granted case.
type ReservationResponse struct {
	ID        string `json:"id" doc:"Reservation identifier"`
	Amount    int64  `json:"amount" doc:"Reserved amount"`
	Committed bool   `json:"committed" doc:"Whether the amount was consumed"`
}

// CaseResponse is the API representation of a case.
type CaseResponse struct {
	ID              string               `json:"id" doc:"Case identifier"`
	ProgramID       string               `json:"program_id" doc:"Program the case belongs to"`
	Family          string               `json:"family" doc:"Workflow family"`
	Origin          string               `json:"origin" doc:"Submission surface"`
	Applicant       map[string]any       `json:"applicant,omitempty" doc:"Opaque applicant data"`
	Attributes      map[string]any       `json:"attributes,omitempty" doc:"Values the criteria are evaluated against"`
	SubmittedAt     string               `json:"submitted_at" doc:"Submission timestamp (RFC 3339)"`
	Score           *int                 `json:"score,omitempty" doc:"Eligibility score"`
	Eligible        *bool                `json:"eligible,omitempty" doc:"Whether every mandatory criterion holds"`
	FailedMandatory []string             `json:"failed_mandatory,omitempty" doc:"Mandatory criteria that failed"`
	State           string               `json:"state" doc:"Current state"`
	StateEnteredAt  string               `json:"state_entered_at" doc:"When the current state was entered (RFC 3339)"`
	DeadlineAt      *string              `json:"deadline_at,omitempty" doc:"SLA deadline of the current state (RFC 3339)"`
	QueuePosition   *int                 `json:"queue_position,omitempty" doc:"1-based waitlist position while pending"`
	RequestedAmount int64                `json:"requested_amount" doc:"Amount reserved when granted"`
	Reservation     *ReservationResponse `json:"reservation,omitempty" doc:"Budget hold"`
	Escalation      *domain.Escalation   `json:"escalation,omitempty" doc:"Fine or license issued on enforcement"`
	History         []TransitionResponse `json:"history,omitempty" doc:"Append-only transition history"`
	Version         int                  `json:"version" doc:"Optimistic concurrency version"`
}

func toCaseResponse(c domain.Case) CaseResponse {
	resp := CaseResponse{
		ID:              c.ID,
		ProgramID:       c.ProgramID,
		Family:          string(c.Family),
		Origin:          string(c.Origin),
		Applicant:       c.Applicant,
		Attributes:      c.Attributes,
		SubmittedAt:     formatTime(c.SubmittedAt),
		Score:           c.Score,
		Eligible:        c.Eligible,
		FailedMandatory: c.FailedMandatory,
		State:           string(c.State),
		StateEnteredAt:  formatTime(c.StateEnteredAt),
		DeadlineAt:      formatNullTime(c.DeadlineAt),
		QueuePosition:   c.QueuePosition,
		RequestedAmount: c.RequestedAmount,
		Escalation:      c.Escalation,
		Version:         c.Version,
	}
	if c.Reservation != nil {
		resp.Reservation = &ReservationResponse{
			ID:        c.Reservation.ID,
			Amount:    c.Reservation.Amount,
			Committed: c.Reservation.Committed,
		}
	}
	for _, tr := range c.History {
		resp.History = append(resp.History, TransitionResponse{
			From:    string(tr.From),
			To:      string(tr.To),
			At:      formatTime(tr.At),
			ActorID: tr.ActorID,
			Note:    tr.Note,
		})
	}
	return resp
}

func toCaseResponses(cases []domain.Case) []CaseResponse {
	resp := make([]CaseResponse, len(cases))
	for i, c := range cases {
		resp[i] = toCaseResponse(c)
	}
	return resp
}

// --- Submit Case ---

type SubmitCaseInput struct {
	Body struct {
		ProgramID  string         `json:"program_id" minLength:"1" doc:"Program to submit to"`
		ActorID    string         `json:"actor_id" minLength:"1" doc:"Operator registering the case"`
		Attributes map[string]any `json:"attributes,omitempty" doc:"Values the criteria are evaluated against"`
		Applicant  map[string]any `json:"applicant,omitempty" doc:"Opaque applicant data"`
	}
}

type CaseOutput struct {
	Body CaseResponse
}

// --- Get Case ---

type GetCaseInput struct {
	ID string `path:"id" doc:"Case ID"`
}

// --- List Cases ---

type ListCasesInput struct {
	ProgramID string   `query:"program_id" required:"false" doc:"Filter by program"`
	State     []string `query:"state" required:"false" doc:"Filter by current state"`
	Limit     int      `query:"limit" required:"false" default:"50" minimum:"0" doc:"Max results"`
	Offset    int      `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListCasesOutput struct {
	Body []CaseResponse
}

// --- Transitions ---

type AvailableTransitionsOutput struct {
	Body struct {
		CaseID string   `json:"case_id" doc:"Case identifier"`
		States []string `json:"states" doc:"States the case can move to next"`
	}
}

type AdvanceInput struct {
	ID   string `path:"id" doc:"Case ID"`
	Body struct {
		Target  string `json:"target" minLength:"1" doc:"State to move the case to"`
		ActorID string `json:"actor_id" minLength:"1" doc:"Operator performing the transition"`
		Note    string `json:"note,omitempty" doc:"Free-text note stored in the history"`
	}
}

type CancelInput struct {
	ID   string `path:"id" doc:"Case ID"`
	Body struct {
		ActorID string `json:"actor_id" minLength:"1" doc:"Operator cancelling the case"`
		Reason  string `json:"reason,omitempty" doc:"Cancellation reason stored in the history"`
	}
}

func registerCases(api huma.API, registry *app.CaseRegistry) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-case",
		Method:      http.MethodPost,
		Path:        "/api/v1/cases",
		Summary:     "Register a new case",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *SubmitCaseInput) (*CaseOutput, error) {
		c, err := registry.Submit(ctx, app.SubmitCaseRequest{
			ProgramID:  input.Body.ProgramID,
			Attributes: input.Body.Attributes,
			Applicant:  input.Body.Applicant,
			Origin:     domain.OriginAdmin,
			ActorID:    input.Body.ActorID,
		})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &CaseOutput{Body: toCaseResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/api/v1/cases/{id}",
		Summary:     "Get a case with its history",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *GetCaseInput) (*CaseOutput, error) {
		c, err := registry.GetCase(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &CaseOutput{Body: toCaseResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/api/v1/cases",
		Summary:     "List cases",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *ListCasesInput) (*ListCasesOutput, error) {
		filter := domain.CaseFilter{
			ProgramID: input.ProgramID,
			Limit:     input.Limit,
			Offset:    input.Offset,
		}
		for _, s := range input.State {
			filter.States = append(filter.States, domain.State(s))
		}

		cases, err := registry.ListCases(ctx, filter)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListCasesOutput{Body: toCaseResponses(cases)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-available-transitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/cases/{id}/transitions",
		Summary:     "List the states a case can move to",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *GetCaseInput) (*AvailableTransitionsOutput, error) {
		states, err := registry.AvailableTransitions(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}

		out := &AvailableTransitionsOutput{}
		out.Body.CaseID = input.ID
		out.Body.States = make([]string, len(states))
		for i, s := range states {
			out.Body.States[i] = string(s)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-case",
		Method:      http.MethodPost,
		Path:        "/api/v1/cases/{id}/transitions",
		Summary:     "Move a case to its next state",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *AdvanceInput) (*CaseOutput, error) {
		c, err := registry.Advance(ctx, input.ID, domain.State(input.Body.Target), input.Body.ActorID, input.Body.Note)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &CaseOutput{Body: toCaseResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-case",
		Method:      http.MethodPost,
		Path:        "/api/v1/cases/{id}/cancel",
		Summary:     "Cancel an open case",
		Tags:        []string{"Cases"},
	}, func(ctx context.Context, input *CancelInput) (*CaseOutput, error) {
		c, err := registry.Cancel(ctx, input.ID, input.Body.ActorID, input.Body.Reason)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &CaseOutput{Body: toCaseResponse(c)}, nil
	})
}
