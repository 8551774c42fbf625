package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://www.zohoapis.com/crm/v3"

type CRMClient struct {
	oauthToken string
	baseURL    string
	httpClient *http.Client
}

type Lookup struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Deal struct {
	ID            string  `json:"id,omitempty"`
	DealName      string  `json:"Deal_Name,omitempty"`
	AccountName   *Lookup `json:"Account_Name,omitempty"`
	Owner         *Lookup `json:"Owner,omitempty"`
	Stage         string  `json:"Stage,omitempty"`
	Amount        float64 `json:"Amount,omitempty"`
	ClosingDate   string  `json:"Closing_Date,omitempty"`
	ReasonForLoss string  `json:"Reason_For_Loss__s,omitempty"`
}

type writeResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

// NewCRMClient returns a Deals API client. An empty baseURL selects the
// public US data centre.
func NewCRMClient(oauthToken, baseURL string, timeout time.Duration) *CRMClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CRMClient{
		oauthToken: oauthToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchDeals returns the deals whose account name equals accountName.
func (c *CRMClient) SearchDeals(ctx context.Context, accountName string) ([]Deal, error) {
	criteria := fmt.Sprintf("(Account_Name:equals:%s)", escapeCriteria(accountName))
	endpoint := fmt.Sprintf("%s/Deals/search?criteria=%s", c.baseURL, url.QueryEscape(criteria))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+c.oauthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Zoho answers an empty search with 204 and no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to search deals (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []Deal `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Data, nil
}

// UpdateDeals applies partial updates; each deal must carry its ID. It
// returns the IDs Zoho reported as updated.
func (c *CRMClient) UpdateDeals(ctx context.Context, deals []Deal) ([]string, error) {
	if len(deals) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(map[string]interface{}{"data": deals})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deals: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/Deals", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Zoho-oauthtoken "+c.oauthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// 207 is a partial success; the per-record statuses say which.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("failed to update deals (status %d): %s", resp.StatusCode, string(body))
	}

	var writeResp writeResponse
	if err := json.Unmarshal(body, &writeResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var updated, failed []string
	for _, d := range writeResp.Data {
		if d.Status == "success" {
			updated = append(updated, d.Details.ID)
		} else {
			failed = append(failed, d.Message)
		}
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("deal update failed: %s", strings.Join(failed, "; "))
	}
	return updated, nil
}

func escapeCriteria(v string) string {
	r := strings.NewReplacer(`(`, `\(`, `)`, `\)`, `,`, `\,`)
	return r.Replace(v)
}
