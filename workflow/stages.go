package workflow

import (
	"sort"
	"time"
)

// Stage is one discrete phase of the capital-raise pipeline
type Stage string

const (
	StageCapitalRaiseIntent Stage = "capital_raise_intent"
	StageIBAssignment       Stage = "ib_assignment"
	StageDueDiligence       Stage = "due_diligence"
	StageProspectusBuilding Stage = "prospectus_building"
	StageRegulatoryReview   Stage = "regulatory_review"
	StageListingApproval    Stage = "listing_approval"
	StageISINAssignment     Stage = "isin_assignment"
	StageInvestorOnboarding Stage = "investor_onboarding"
	StageTradingActive      Stage = "trading_active"
	StageSettlement         Stage = "settlement"

	// Terminal pseudo-stages. No actions are legal once reached.
	StageCompleted Stage = "completed"
	StageRejected  Stage = "rejected"
)

// Action is a role-gated operation that moves a workflow out of a stage
type Action string

const (
	ActionSubmitApplication    Action = "submit_application"
	ActionAssignIB             Action = "assign_ib"
	ActionCompleteDueDiligence Action = "complete_due_diligence"
	ActionSubmitProspectus     Action = "submit_prospectus"
	ActionApproveFiling        Action = "approve_filing"
	ActionRejectFiling         Action = "reject_filing"
	ActionApproveListing       Action = "approve_listing"
	ActionCreateISIN           Action = "create_isin"
	ActionCompleteOnboarding   Action = "complete_onboarding"
	ActionCloseTrading         Action = "close_trading"
	ActionCompleteSettlement   Action = "complete_settlement"
)

// DocumentType classifies documents gating stage completion
type DocumentType string

const (
	DocFinancialStatements DocumentType = "financial_statements"
	DocProspectus          DocumentType = "prospectus"
)

// StageRule is the static definition of a single stage: who owns it, which
// actions leave it and where they lead, which documents must be approved
// before a completing action succeeds, who reviews those documents, and the
// stage's SLA.
type StageRule struct {
	Owner        Role
	Transitions  map[Action]Stage
	RequiredDocs []DocumentType
	Reviewer     Role
	SLA          time.Duration
}

// StageGraph is the side-effect-free lookup table for the pipeline. One
// instance serves every workflow; dashboards derive "what can this role do
// right now" from it instead of per-role conditionals.
type StageGraph struct {
	order []Stage
	rules map[Stage]StageRule
}

// GraphOption configures a stage graph
type GraphOption func(*StageGraph)

// WithStageSLA overrides the SLA for a stage. The defaults are simulation
// values; deployments tune them per market.
func WithStageSLA(stage Stage, sla time.Duration) GraphOption {
	return func(g *StageGraph) {
		if rule, ok := g.rules[stage]; ok {
			rule.SLA = sla
			g.rules[stage] = rule
		}
	}
}

// NewStageGraph builds the canonical 11-stage listing pipeline
func NewStageGraph(opts ...GraphOption) *StageGraph {
	g := &StageGraph{
		order: []Stage{
			StageCapitalRaiseIntent,
			StageIBAssignment,
			StageDueDiligence,
			StageProspectusBuilding,
			StageRegulatoryReview,
			StageListingApproval,
			StageISINAssignment,
			StageInvestorOnboarding,
			StageTradingActive,
			StageSettlement,
			StageCompleted,
		},
		rules: map[Stage]StageRule{
			StageCapitalRaiseIntent: {
				Owner:       RoleIssuer,
				Transitions: map[Action]Stage{ActionSubmitApplication: StageIBAssignment},
				SLA:         72 * time.Hour,
			},
			StageIBAssignment: {
				Owner:       RoleInvestmentBank,
				Transitions: map[Action]Stage{ActionAssignIB: StageDueDiligence},
				SLA:         120 * time.Hour,
			},
			StageDueDiligence: {
				Owner:        RoleInvestmentBank,
				Transitions:  map[Action]Stage{ActionCompleteDueDiligence: StageProspectusBuilding},
				RequiredDocs: []DocumentType{DocFinancialStatements},
				Reviewer:     RoleInvestmentBank,
				SLA:          14 * 24 * time.Hour,
			},
			StageProspectusBuilding: {
				Owner:        RoleInvestmentBank,
				Transitions:  map[Action]Stage{ActionSubmitProspectus: StageRegulatoryReview},
				RequiredDocs: []DocumentType{DocProspectus},
				Reviewer:     RoleRegulator,
				SLA:          21 * 24 * time.Hour,
			},
			StageRegulatoryReview: {
				Owner: RoleRegulator,
				Transitions: map[Action]Stage{
					ActionApproveFiling: StageListingApproval,
					ActionRejectFiling:  StageRejected,
				},
				SLA: 10 * 24 * time.Hour,
			},
			StageListingApproval: {
				Owner: RoleExchange,
				Transitions: map[Action]Stage{
					ActionApproveListing: StageISINAssignment,
					ActionRejectFiling:   StageRejected,
				},
				SLA: 5 * 24 * time.Hour,
			},
			StageISINAssignment: {
				Owner:       RoleCSD,
				Transitions: map[Action]Stage{ActionCreateISIN: StageInvestorOnboarding},
				SLA:         48 * time.Hour,
			},
			StageInvestorOnboarding: {
				Owner:       RoleBroker,
				Transitions: map[Action]Stage{ActionCompleteOnboarding: StageTradingActive},
				SLA:         14 * 24 * time.Hour,
			},
			StageTradingActive: {
				Owner:       RoleExchange,
				Transitions: map[Action]Stage{ActionCloseTrading: StageSettlement},
				SLA:         30 * 24 * time.Hour,
			},
			StageSettlement: {
				Owner:       RoleCSD,
				Transitions: map[Action]Stage{ActionCompleteSettlement: StageCompleted},
				SLA:         72 * time.Hour,
			},
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Stages returns the canonical stage order, terminal completed stage last
func (g *StageGraph) Stages() []Stage {
	out := make([]Stage, len(g.order))
	copy(out, g.order)
	return out
}

// OwnerRole returns the single role authorized to advance out of a stage,
// or empty for terminal and unknown stages
func (g *StageGraph) OwnerRole(stage Stage) Role {
	return g.rules[stage].Owner
}

// AllowedActions returns the actions legal at a stage in deterministic order
func (g *StageGraph) AllowedActions(stage Stage) []Action {
	rule, ok := g.rules[stage]
	if !ok {
		return nil
	}

	actions := make([]Action, 0, len(rule.Transitions))
	for action := range rule.Transitions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// NextStage returns the deterministic successor for an action at a stage.
// The second return is false when the action is not legal there.
func (g *StageGraph) NextStage(stage Stage, action Action) (Stage, bool) {
	rule, ok := g.rules[stage]
	if !ok {
		return "", false
	}
	next, ok := rule.Transitions[action]
	return next, ok
}

// RequiredDocuments returns the document types that must all be approved
// before a completing action may leave the stage
func (g *StageGraph) RequiredDocuments(stage Stage) []DocumentType {
	rule := g.rules[stage]
	out := make([]DocumentType, len(rule.RequiredDocs))
	copy(out, rule.RequiredDocs)
	return out
}

// ReviewerRole returns the role allowed to decide on documents attached at
// a stage, or empty when the stage declares no prerequisites
func (g *StageGraph) ReviewerRole(stage Stage) Role {
	return g.rules[stage].Reviewer
}

// SLA returns the stage's service-level window; zero for terminal stages
func (g *StageGraph) SLA(stage Stage) time.Duration {
	return g.rules[stage].SLA
}

// IsTerminal reports whether a stage accepts no further actions
func (g *StageGraph) IsTerminal(stage Stage) bool {
	return stage == StageCompleted || stage == StageRejected
}

// KnownStage reports whether the stage exists in the pipeline, terminal
// pseudo-stages included
func (g *StageGraph) KnownStage(stage Stage) bool {
	if _, ok := g.rules[stage]; ok {
		return true
	}
	return g.IsTerminal(stage)
}
