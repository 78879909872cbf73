// workers/outcome_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"auction-admin-system/models"
	"auction-admin-system/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuctionOutcome is one changed auction as reported by the auction
// lifecycle service.
type AuctionOutcome struct {
	ID         string               `json:"id"`
	Status     models.AuctionStatus `json:"status"`
	BidCount   int                  `json:"bid_count"`
	CurrentBid decimal.Decimal      `json:"current_bid"`
	FinalPrice *decimal.Decimal     `json:"final_price,omitempty"`
	IsFinal    bool                 `json:"is_final"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// OutcomeSyncClient pulls auction lifecycle state (bids, status, finality)
// and writes it onto local Auction rows. Settlement relies on this worker:
// a tournament cannot settle until every auction it references has
// is_final set here.
type OutcomeSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewOutcomeSyncClient(db *gorm.DB) *OutcomeSyncClient {
	baseURL := os.Getenv("AUCTION_LIFECYCLE_URL")
	if baseURL == "" {
		log.Fatal("AUCTION_LIFECYCLE_URL environment variable is required")
	}
	token := os.Getenv("AUCTION_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("AUCTION_SERVICE_TOKEN environment variable is required for outcome sync")
	}

	return &OutcomeSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		DB:         db,
		HTTPClient: utils.HTTPClient,
	}
}

func (c *OutcomeSyncClient) GetChangedAuctions(ctx context.Context, since time.Time) ([]AuctionOutcome, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/auctions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call auction lifecycle service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("lifecycle service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Auctions []AuctionOutcome `json:"auctions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode lifecycle service response: %w", err)
	}
	return response.Auctions, nil
}

// PollOutcomes polls the lifecycle service and applies changed outcomes.
// Finalized rows are never overwritten: finality is one-way.
func PollOutcomes(ctx context.Context, client *OutcomeSyncClient, pollInterval time.Duration) {
	log.Println("Starting auction outcome polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Auction outcome polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			outcomes, err := client.GetChangedAuctions(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling auction outcomes: %v", err)
				continue
			}
			if len(outcomes) == 0 {
				continue
			}

			applied, failed := 0, 0
			for _, o := range outcomes {
				updates := map[string]interface{}{
					"status":      o.Status,
					"bid_count":   o.BidCount,
					"current_bid": o.CurrentBid,
					"is_final":    o.IsFinal,
				}
				if o.FinalPrice != nil {
					updates["final_price"] = *o.FinalPrice
				}

				res := client.DB.Model(&models.Auction{}).
					Where("id = ? AND is_final = false", o.ID).
					Updates(updates)
				if res.Error != nil {
					failed++
					log.Printf("❌ Failed to apply outcome for auction %s: %v", o.ID, res.Error)
					continue
				}
				applied += int(res.RowsAffected)
			}

			if failed > 0 {
				// Do NOT advance lastSyncTime — retry the same window next tick.
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Applied %d auction outcome change(s) (%d received).", applied, len(outcomes))
		}
	}
}
