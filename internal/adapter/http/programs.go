package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/caseflow/internal/app"
	"github.com/neomorfeo/caseflow/internal/domain"
)

// CriterionBody is the API representation of an eligibility criterion.
type CriterionBody struct {
	Name      string           `json:"name" minLength:"1" doc:"Unique criterion name within the program"`
	Weight    int              `json:"weight,omitempty" minimum:"0" doc:"Points added when an optional criterion holds"`
	Mandatory bool             `json:"mandatory,omitempty" doc:"Failing a mandatory criterion makes the case ineligible"`
	Predicate domain.Predicate `json:"predicate" doc:"Rule evaluated against the case attributes"`
}

// EnforcementBody configures the escalation produced by the Enforced state.
type EnforcementBody struct {
	FineAmount   int64 `json:"fine_amount,omitempty" doc:"Fine issued when a complaint is enforced"`
	DefenseDays  int   `json:"defense_days,omitempty" doc:"Days the offender has to present a defense"`
	ValidityDays int   `json:"validity_days,omitempty" doc:"Validity of an issued license in days"`
}

// BudgetBody is a program's monetary allocation.
type BudgetBody struct {
	Allocated int64 `json:"allocated" doc:"Total amount allocated to the program"`
	Unlimited bool  `json:"unlimited" doc:"True for programs without a budget cap"`
}

// ProgramResponse is the API representation of a program.
type ProgramResponse struct {
	ID                string          `json:"id" doc:"Program identifier"`
	Name              string          `json:"name" doc:"Display name"`
	Description       string          `json:"description" doc:"Public description"`
	Family            string          `json:"family" doc:"Workflow family"`
	Criteria          []CriterionBody `json:"criteria" doc:"Eligibility criteria"`
	MaxScore          int             `json:"max_score" doc:"Score ceiling"`
	Periodicity       string          `json:"periodicity,omitempty" doc:"Payment periodicity, informational"`
	Budget            BudgetBody      `json:"budget" doc:"Budget allocation"`
	GrantAmount       int64           `json:"grant_amount" doc:"Default amount reserved when a case is granted"`
	SLADays           map[string]int  `json:"sla_days" doc:"Deadline in days per state"`
	Enforcement       EnforcementBody `json:"enforcement" doc:"Escalation settings"`
	RequiredDocuments []string        `json:"required_documents" doc:"Documents listed in the public catalog"`
	EstimatedDays     int             `json:"estimated_days" doc:"Estimated processing time in days"`
	IsFree            bool            `json:"is_free" doc:"Whether the service is free of charge"`
	Active            bool            `json:"active" doc:"Whether the program accepts submissions"`
	CreatedAt         string          `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt         string          `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toProgramResponse(p domain.Program) ProgramResponse {
	criteria := make([]CriterionBody, len(p.Criteria))
	for i, c := range p.Criteria {
		criteria[i] = CriterionBody{Name: c.Name, Weight: c.Weight, Mandatory: c.Mandatory, Predicate: c.Predicate}
	}
	sla := make(map[string]int, len(p.SLADays))
	for s, d := range p.SLADays {
		sla[string(s)] = d
	}
	docs := p.RequiredDocuments
	if docs == nil {
		docs = []string{}
	}
	return ProgramResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Family:      string(p.Family),
		Criteria:    criteria,
		MaxScore:    p.MaxScore,
		Periodicity: p.Periodicity,
		Budget:      BudgetBody{Allocated: p.Budget.Allocated, Unlimited: p.Budget.Unlimited},
		GrantAmount: p.GrantAmount,
		SLADays:     sla,
		Enforcement: EnforcementBody{
			FineAmount:   p.Enforcement.FineAmount,
			DefenseDays:  p.Enforcement.DefenseDays,
			ValidityDays: p.Enforcement.ValidityDays,
		},
		RequiredDocuments: docs,
		EstimatedDays:     p.EstimatedDays,
		IsFree:            p.IsFree,
		Active:            p.Active,
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
}

// LedgerResponse is the budget accounting of a program.
type LedgerResponse struct {
	ProgramID string `json:"program_id" doc:"Program identifier"`
	Allocated int64  `json:"allocated" doc:"Total allocation"`
	Reserved  int64  `json:"reserved" doc:"Amount held by granted cases not yet committed"`
	Consumed  int64  `json:"consumed" doc:"Amount committed"`
	Remaining *int64 `json:"remaining" doc:"Amount still available, null when unlimited"`
	Unlimited bool   `json:"unlimited" doc:"True for programs without a budget cap"`
}

func toLedgerResponse(e domain.LedgerEntry) LedgerResponse {
	return LedgerResponse{
		ProgramID: e.ProgramID,
		Allocated: e.Allocated,
		Reserved:  e.Reserved,
		Consumed:  e.Consumed,
		Remaining: remaining(e.Remaining()),
		Unlimited: e.Unlimited,
	}
}

// StatisticsResponse is the administrative projection of a program.
type StatisticsResponse struct {
	ProgramID          string             `json:"program_id" doc:"Program identifier"`
	Total              int                `json:"total" doc:"Number of cases"`
	ByState            map[string]int     `json:"by_state" doc:"Case count per current state"`
	AverageDaysInState map[string]float64 `json:"average_days_in_state" doc:"Average days spent per state"`
	Overdue            int                `json:"overdue" doc:"Open cases past their SLA deadline"`
	QueueLength        int                `json:"queue_length" doc:"Cases waiting on the waitlist"`
	RemainingBudget    *int64             `json:"remaining_budget" doc:"Budget still available, null when unlimited"`
}

func toStatisticsResponse(s domain.ProgramStatistics) StatisticsResponse {
	byState := make(map[string]int, len(s.ByState))
	for st, n := range s.ByState {
		byState[string(st)] = n
	}
	avg := make(map[string]float64, len(s.AverageDaysInState))
	for st, d := range s.AverageDaysInState {
		avg[string(st)] = d
	}
	return StatisticsResponse{
		ProgramID:          s.ProgramID,
		Total:              s.Total,
		ByState:            byState,
		AverageDaysInState: avg,
		Overdue:            s.Overdue,
		QueueLength:        s.QueueLength,
		RemainingBudget:    remaining(s.RemainingBudget),
	}
}

// WaitlistEntryResponse is one ranked row of a program's waitlist.
type WaitlistEntryResponse struct {
	Position    int    `json:"position" doc:"1-based queue position"`
	CaseID      string `json:"case_id" doc:"Case identifier"`
	Score       int    `json:"score" doc:"Eligibility score"`
	SubmittedAt string `json:"submitted_at" doc:"Submission timestamp (RFC 3339)"`
}

// --- Create Program ---

type CreateProgramInput struct {
	Body struct {
		ID                string          `json:"id" minLength:"1" maxLength:"100" pattern:"^[a-z0-9]+(?:[-_][a-z0-9]+)*$" doc:"Program identifier"`
		Name              string          `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Description       string          `json:"description,omitempty" doc:"Public description"`
		Family            string          `json:"family" enum:"benefit_grant,housing_enrollment,environmental_license,environmental_complaint" doc:"Workflow family"`
		Criteria          []CriterionBody `json:"criteria,omitempty" doc:"Eligibility criteria"`
		MaxScore          int             `json:"max_score,omitempty" minimum:"0" doc:"Score ceiling, defaults to 100"`
		Periodicity       string          `json:"periodicity,omitempty" doc:"Payment periodicity, informational"`
		Budget            *BudgetBody     `json:"budget,omitempty" doc:"Budget allocation, ignored for non-monetary families"`
		GrantAmount       int64           `json:"grant_amount,omitempty" doc:"Default amount reserved when a case is granted"`
		SLADays           map[string]int  `json:"sla_days,omitempty" doc:"Deadline in days per state"`
		Enforcement       EnforcementBody `json:"enforcement,omitempty" doc:"Escalation settings"`
		RequiredDocuments []string        `json:"required_documents,omitempty" doc:"Documents listed in the public catalog"`
		EstimatedDays     int             `json:"estimated_days,omitempty" doc:"Estimated processing time in days"`
		IsFree            bool            `json:"is_free,omitempty" doc:"Whether the service is free of charge"`
		Active            bool            `json:"active,omitempty" doc:"Open the program for submissions immediately"`
	}
}

type ProgramOutput struct {
	Body ProgramResponse
}

// --- Get Program ---

type GetProgramInput struct {
	ID string `path:"id" doc:"Program ID"`
}

// --- List Programs ---

type ListProgramsInput struct {
	Family string `query:"family" required:"false" doc:"Filter by family"`
	Active string `query:"active" required:"false" enum:"true,false" doc:"Filter by activation"`
}

type ListProgramsOutput struct {
	Body []ProgramResponse
}

// --- Top Up ---

type TopUpInput struct {
	ID   string `path:"id" doc:"Program ID"`
	Body struct {
		Amount int64 `json:"amount" doc:"Amount added to the allocation"`
	}
}

type LedgerOutput struct {
	Body LedgerResponse
}

// --- Activation ---

type ActivationInput struct {
	ID   string `path:"id" doc:"Program ID"`
	Body struct {
		Active bool `json:"active" doc:"Whether the program accepts submissions"`
	}
}

// --- Statistics, Waitlist, Overdue ---

type StatisticsOutput struct {
	Body StatisticsResponse
}

type WaitlistInput struct {
	ID    string `path:"id" doc:"Program ID"`
	Limit int    `query:"limit" required:"false" default:"20" minimum:"1" maximum:"500" doc:"Number of entries"`
}

type WaitlistOutput struct {
	Body []WaitlistEntryResponse
}

func registerPrograms(api huma.API, svc *app.ProgramService, registry *app.CaseRegistry) {
	huma.Register(api, huma.Operation{
		OperationID: "create-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs",
		Summary:     "Create a program",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *CreateProgramInput) (*ProgramOutput, error) {
		b := input.Body
		p := domain.Program{
			ID:                b.ID,
			Name:              b.Name,
			Description:       b.Description,
			Family:            domain.Family(b.Family),
			MaxScore:          b.MaxScore,
			Periodicity:       b.Periodicity,
			GrantAmount:       b.GrantAmount,
			RequiredDocuments: b.RequiredDocuments,
			EstimatedDays:     b.EstimatedDays,
			IsFree:            b.IsFree,
			Active:            b.Active,
			Enforcement: domain.Enforcement{
				FineAmount:   b.Enforcement.FineAmount,
				DefenseDays:  b.Enforcement.DefenseDays,
				ValidityDays: b.Enforcement.ValidityDays,
			},
		}
		for _, c := range b.Criteria {
			p.Criteria = append(p.Criteria, domain.Criterion{
				Name: c.Name, Weight: c.Weight, Mandatory: c.Mandatory, Predicate: c.Predicate,
			})
		}
		p.Budget = domain.NoBudget()
		if b.Budget != nil {
			p.Budget = domain.Budget{Allocated: b.Budget.Allocated, Unlimited: b.Budget.Unlimited}
		}
		if len(b.SLADays) > 0 {
			p.SLADays = make(map[domain.State]int, len(b.SLADays))
			for s, d := range b.SLADays {
				p.SLADays[domain.State(s)] = d
			}
		}

		program, err := svc.Create(ctx, p)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}",
		Summary:     "Get a program by ID",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramInput) (*ProgramOutput, error) {
		program, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-programs",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs",
		Summary:     "List programs",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *ListProgramsInput) (*ListProgramsOutput, error) {
		var filter domain.ProgramFilter
		if input.Family != "" {
			f := domain.Family(input.Family)
			filter.Family = &f
		}
		if input.Active != "" {
			active := input.Active == "true"
			filter.Active = &active
		}

		programs, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}

		resp := make([]ProgramResponse, len(programs))
		for i, p := range programs {
			resp[i] = toProgramResponse(p)
		}
		return &ListProgramsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "top-up-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/top-up",
		Summary:     "Add funds to a program's allocation",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *TopUpInput) (*LedgerOutput, error) {
		entry, err := svc.TopUp(ctx, input.ID, input.Body.Amount)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &LedgerOutput{Body: toLedgerResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-program-activation",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/activation",
		Summary:     "Open or close a program for submissions",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *ActivationInput) (*ProgramOutput, error) {
		program, err := svc.SetActive(ctx, input.ID, input.Body.Active)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program-ledger",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}/ledger",
		Summary:     "Get a program's budget accounting",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramInput) (*LedgerOutput, error) {
		entry, err := svc.Ledger(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &LedgerOutput{Body: toLedgerResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program-statistics",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}/statistics",
		Summary:     "Get case statistics for a program",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramInput) (*StatisticsOutput, error) {
		stats, err := registry.Statistics(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &StatisticsOutput{Body: toStatisticsResponse(stats)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program-waitlist",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}/waitlist",
		Summary:     "Get the ranked waitlist of a program",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *WaitlistInput) (*WaitlistOutput, error) {
		entries, err := registry.Waitlist(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}

		resp := make([]WaitlistEntryResponse, len(entries))
		for i, e := range entries {
			resp[i] = WaitlistEntryResponse{
				Position:    e.Position,
				CaseID:      e.CaseID,
				Score:       e.Score,
				SubmittedAt: formatTime(e.SubmittedAt),
			}
		}
		return &WaitlistOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue-cases",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}/overdue",
		Summary:     "List open cases past their SLA deadline",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramInput) (*ListCasesOutput, error) {
		cases, err := registry.ListOverdue(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListCasesOutput{Body: toCaseResponses(cases)}, nil
	})
}
