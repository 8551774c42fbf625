// internal/engine/executor/crm.go
package executor

import (
	"context"
	"fmt"
	"strings"

	"crm-assistant/internal/common/zoho"
	"crm-assistant/internal/engine/intentparser"
	"crm-assistant/internal/models"
)

// DealService is the part of the Zoho client the CRM executor needs.
type DealService interface {
	SearchDeals(ctx context.Context, accountName string) ([]zoho.Deal, error)
	UpdateDeals(ctx context.Context, deals []zoho.Deal) ([]string, error)
}

// Zoho stage picklist values for the write intents.
const (
	ZohoStageClosedLost = "Closed Lost"
	ZohoStageNurture    = "Nurture"
)

// CRMExecutor moves every open deal of the named accounts to a new stage.
type CRMExecutor struct {
	deals        DealService
	nurtureStage string
}

func NewCRMExecutor(deals DealService, nurtureStage string) *CRMExecutor {
	if nurtureStage == "" {
		nurtureStage = ZohoStageNurture
	}
	return &CRMExecutor{deals: deals, nurtureStage: nurtureStage}
}

func (e *CRMExecutor) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	if intent == nil || !intent.Intent.IsWrite() {
		return nil, ErrUnsupportedIntent
	}
	accounts, ok := intent.Entities.Get(models.EntityAccounts)
	if !ok {
		return nil, fmt.Errorf("%w: %v: accounts", ErrExecutorFailed, ErrMissingEntity)
	}

	target := e.nurtureStage
	reason := ""
	if intent.Intent == models.IntentCloseLost {
		target = ZohoStageClosedLost
		reason = intent.Entities.First(models.EntityLossReason)
	}

	var (
		updates  []zoho.Deal
		byID     = map[string]zoho.Deal{}
		notFound []string
	)
	for _, account := range accounts {
		found, err := e.deals.SearchDeals(ctx, account)
		if err != nil {
			return nil, e.wrap(ctx, err)
		}
		open := 0
		for _, d := range found {
			if isClosed(d.Stage) || strings.EqualFold(d.Stage, target) {
				continue
			}
			open++
			update := zoho.Deal{ID: d.ID, Stage: target, ReasonForLoss: reason}
			updates = append(updates, update)
			d.Stage = target
			if d.AccountName == nil {
				d.AccountName = &zoho.Lookup{Name: account}
			}
			byID[d.ID] = d
		}
		if open == 0 {
			notFound = append(notFound, account)
		}
	}

	if len(updates) == 0 {
		return &models.QueryResult{
			Intent:  intent.Intent,
			Source:  "zoho",
			Summary: fmt.Sprintf("No open deals found for %s.", joinNames(accounts)),
			Records: []models.Record{},
		}, nil
	}

	ids, err := e.deals.UpdateDeals(ctx, updates)
	if err != nil {
		return nil, e.wrap(ctx, err)
	}

	records := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			continue
		}
		records = append(records, dealRecord(d))
	}

	summary := fmt.Sprintf("Moved %s to %s", plural(len(records), "deal", "deals"), target)
	if reason != "" {
		summary += " (reason: " + reason + ")"
	}
	summary += "."
	if len(records) < len(updates) {
		summary += fmt.Sprintf(" %d could not be updated.", len(updates)-len(records))
	}
	if len(notFound) > 0 {
		summary += fmt.Sprintf(" No open deals for %s.", joinNames(notFound))
	}

	return &models.QueryResult{
		Intent:  intent.Intent,
		Source:  "zoho",
		Summary: summary,
		Records: records,
	}, nil
}

func (e *CRMExecutor) wrap(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrExecutorFailed, err)
}

func isClosed(stage string) bool {
	s := strings.ToLower(stage)
	return strings.HasPrefix(s, "closed")
}

func dealRecord(d zoho.Deal) models.Record {
	r := models.Record{
		ID:        d.ID,
		Name:      d.DealName,
		Stage:     intentparser.CanonicalStage(d.Stage),
		Amount:    d.Amount,
		CloseDate: d.ClosingDate,
	}
	if d.AccountName != nil {
		r.Account = d.AccountName.Name
	}
	if d.Owner != nil {
		r.Owner = d.Owner.Name
	}
	if r.Stage == "" {
		r.Stage = strings.ToLower(d.Stage)
	}
	return r
}
