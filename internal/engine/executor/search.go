// internal/engine/executor/search.go
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"crm-assistant/internal/models"
)

const DefaultSearchIndex = "opportunities"

// SearchExecutor finds opportunities for loosely spelled account names in
// the Elasticsearch opportunities index.
type SearchExecutor struct {
	client *elasticsearch.Client
	index  string
	size   int
	now    func() time.Time
}

func NewSearchExecutor(client *elasticsearch.Client, index string, size int) *SearchExecutor {
	if index == "" {
		index = DefaultSearchIndex
	}
	if size <= 0 || size > 100 {
		size = DefaultRowLimit
	}
	return &SearchExecutor{client: client, index: index, size: size, now: time.Now}
}

type opportunityDoc struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AccountName string  `json:"account_name"`
	Stage       string  `json:"stage"`
	OwnerName   string  `json:"owner_name"`
	Amount      float64 `json:"amount"`
	CloseDate   string  `json:"close_date"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Source opportunityDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *SearchExecutor) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	if intent == nil || intent.Intent != models.IntentAccountOpportunities {
		return nil, ErrUnsupportedIntent
	}
	accounts, ok := intent.Entities.Get(models.EntityAccounts)
	if !ok {
		return nil, fmt.Errorf("%w: %v: accounts", ErrExecutorFailed, ErrMissingEntity)
	}

	body, err := json.Marshal(e.buildQuery(accounts, intent.Entities))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrExecutorFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
		Size:  &e.size,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
		}
		return nil, fmt.Errorf("%w: search: %v", ErrExecutorFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search failed: %s", ErrExecutorFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExecutorFailed, err)
	}

	records := make([]models.Record, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		doc := hit.Source
		if doc.ID == "" {
			doc.ID = hit.ID
		}
		records = append(records, models.Record{
			ID:        doc.ID,
			Name:      doc.Name,
			Account:   doc.AccountName,
			Stage:     doc.Stage,
			Owner:     doc.OwnerName,
			Amount:    doc.Amount,
			CloseDate: doc.CloseDate,
		})
	}

	return &models.QueryResult{
		Intent:  intent.Intent,
		Source:  "elasticsearch",
		Summary: summarizeDeals(records, describeScope(intent.Entities)),
		Records: records,
	}, nil
}

func (e *SearchExecutor) buildQuery(accounts []string, entities models.Entities) map[string]interface{} {
	should := make([]interface{}, 0, len(accounts))
	for _, a := range accounts {
		should = append(should, map[string]interface{}{
			"match": map[string]interface{}{
				"account_name": map[string]interface{}{
					"query":     a,
					"fuzziness": "AUTO",
					"operator":  "and",
				},
			},
		})
	}

	var filter []interface{}
	if stages, ok := entities.Get(models.EntityStages); ok {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"stage": stages},
		})
	}
	if period, ok := ResolvePeriod(entities.First(models.EntityDateRange), e.now()); ok {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"close_date": map[string]interface{}{
					"gte": period.From.Format("2006-01-02"),
					"lt":  period.To.Format("2006-01-02"),
				},
			},
		})
	}

	boolQuery := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"amount": map[string]interface{}{"order": "desc"}},
		},
	}
}
