package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStageGraph(t *testing.T) {
	graph := NewStageGraph()

	t.Run("Stages returns the canonical pipeline order", func(t *testing.T) {
		stages := graph.Stages()

		assert.Equal(t, []Stage{
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
		}, stages)
	})

	t.Run("every non-terminal stage has exactly one owner", func(t *testing.T) {
		for _, stage := range graph.Stages() {
			if graph.IsTerminal(stage) {
				continue
			}
			assert.NotEmpty(t, graph.OwnerRole(stage), "stage %s has no owner", stage)
		}
	})

	t.Run("WithStageSLA overrides a single stage", func(t *testing.T) {
		custom := NewStageGraph(WithStageSLA(StageDueDiligence, 48*time.Hour))

		assert.Equal(t, 48*time.Hour, custom.SLA(StageDueDiligence))
		assert.Equal(t, graph.SLA(StageRegulatoryReview), custom.SLA(StageRegulatoryReview))
	})
}

func TestStageGraphTransitions(t *testing.T) {
	graph := NewStageGraph()

	t.Run("happy path is a deterministic chain to completed", func(t *testing.T) {
		steps := []struct {
			stage  Stage
			action Action
			next   Stage
		}{
			{StageCapitalRaiseIntent, ActionSubmitApplication, StageIBAssignment},
			{StageIBAssignment, ActionAssignIB, StageDueDiligence},
			{StageDueDiligence, ActionCompleteDueDiligence, StageProspectusBuilding},
			{StageProspectusBuilding, ActionSubmitProspectus, StageRegulatoryReview},
			{StageRegulatoryReview, ActionApproveFiling, StageListingApproval},
			{StageListingApproval, ActionApproveListing, StageISINAssignment},
			{StageISINAssignment, ActionCreateISIN, StageInvestorOnboarding},
			{StageInvestorOnboarding, ActionCompleteOnboarding, StageTradingActive},
			{StageTradingActive, ActionCloseTrading, StageSettlement},
			{StageSettlement, ActionCompleteSettlement, StageCompleted},
		}

		for _, step := range steps {
			next, ok := graph.NextStage(step.stage, step.action)
			assert.True(t, ok, "%s at %s should be legal", step.action, step.stage)
			assert.Equal(t, step.next, next)
		}
	})

	t.Run("reject_filing branches to rejected from review stages only", func(t *testing.T) {
		next, ok := graph.NextStage(StageRegulatoryReview, ActionRejectFiling)
		assert.True(t, ok)
		assert.Equal(t, StageRejected, next)

		next, ok = graph.NextStage(StageListingApproval, ActionRejectFiling)
		assert.True(t, ok)
		assert.Equal(t, StageRejected, next)

		_, ok = graph.NextStage(StageDueDiligence, ActionRejectFiling)
		assert.False(t, ok)
	})

	t.Run("actions are illegal outside their stage", func(t *testing.T) {
		_, ok := graph.NextStage(StageCapitalRaiseIntent, ActionCreateISIN)
		assert.False(t, ok)

		_, ok = graph.NextStage(StageSettlement, ActionSubmitApplication)
		assert.False(t, ok)
	})

	t.Run("terminal stages allow nothing", func(t *testing.T) {
		assert.True(t, graph.IsTerminal(StageCompleted))
		assert.True(t, graph.IsTerminal(StageRejected))
		assert.Empty(t, graph.AllowedActions(StageCompleted))
		assert.Empty(t, graph.AllowedActions(StageRejected))
	})

	t.Run("AllowedActions returns a deterministic order", func(t *testing.T) {
		actions := graph.AllowedActions(StageRegulatoryReview)
		assert.Equal(t, []Action{ActionApproveFiling, ActionRejectFiling}, actions)
	})
}

func TestStageGraphOwnership(t *testing.T) {
	graph := NewStageGraph()

	t.Run("owners follow the institutional pipeline", func(t *testing.T) {
		assert.Equal(t, RoleIssuer, graph.OwnerRole(StageCapitalRaiseIntent))
		assert.Equal(t, RoleInvestmentBank, graph.OwnerRole(StageIBAssignment))
		assert.Equal(t, RoleInvestmentBank, graph.OwnerRole(StageDueDiligence))
		assert.Equal(t, RoleInvestmentBank, graph.OwnerRole(StageProspectusBuilding))
		assert.Equal(t, RoleRegulator, graph.OwnerRole(StageRegulatoryReview))
		assert.Equal(t, RoleExchange, graph.OwnerRole(StageListingApproval))
		assert.Equal(t, RoleCSD, graph.OwnerRole(StageISINAssignment))
		assert.Equal(t, RoleBroker, graph.OwnerRole(StageInvestorOnboarding))
		assert.Equal(t, RoleExchange, graph.OwnerRole(StageTradingActive))
		assert.Equal(t, RoleCSD, graph.OwnerRole(StageSettlement))
	})

	t.Run("document prerequisites and reviewers", func(t *testing.T) {
		assert.Equal(t, []DocumentType{DocFinancialStatements}, graph.RequiredDocuments(StageDueDiligence))
		assert.Equal(t, RoleInvestmentBank, graph.ReviewerRole(StageDueDiligence))

		assert.Equal(t, []DocumentType{DocProspectus}, graph.RequiredDocuments(StageProspectusBuilding))
		assert.Equal(t, RoleRegulator, graph.ReviewerRole(StageProspectusBuilding))

		assert.Empty(t, graph.RequiredDocuments(StageRegulatoryReview))
		assert.Empty(t, graph.ReviewerRole(StageRegulatoryReview))
	})

	t.Run("KnownStage accepts terminal pseudo-stages and rejects junk", func(t *testing.T) {
		assert.True(t, graph.KnownStage(StageCompleted))
		assert.True(t, graph.KnownStage(StageRejected))
		assert.True(t, graph.KnownStage(StageSettlement))
		assert.False(t, graph.KnownStage(Stage("ipo_party")))
	})
}
