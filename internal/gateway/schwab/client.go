package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mirra/internal/logger"
	"mirra/internal/pkg/jsonutil"
	"mirra/internal/pkg/retry"
	"mirra/internal/types"

	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://api.schwabapi.com"

// TokenSource yields a current access token. Token storage and OAuth
// refresh live outside this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the HTTP client for the trader API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

var (
	_ SnapshotProvider = (*Client)(nil)
	_ OrderPlacer      = (*Client)(nil)
	_ AccountResolver  = (*Client)(nil)
)

// GetSnapshot fetches the account with positions and maps it into the
// internal snapshot shape.
func (c *Client) GetSnapshot(ctx context.Context, accountRef string) (types.AccountSnapshot, error) {
	url := fmt.Sprintf("%s/trader/v1/accounts/%s?fields=positions", c.baseURL, accountRef)
	body, _, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.AccountSnapshot{}, err
	}
	return parseSnapshot(body)
}

func parseSnapshot(body []byte) (types.AccountSnapshot, error) {
	root := gjson.GetBytes(body, "securitiesAccount")
	if !root.Exists() {
		return types.AccountSnapshot{}, fmt.Errorf("snapshot response missing securitiesAccount")
	}
	balances := root.Get("currentBalances")
	snap := types.AccountSnapshot{
		AccountID: root.Get("accountNumber").String(),
		Balances: types.Balances{
			LiquidationValue: balances.Get("liquidationValue").Float(),
			CashBalance:      balances.Get("cashBalance").Float(),
			BuyingPower:      balances.Get("buyingPower").Float(),
			AvailableFunds:   balances.Get("availableFunds").Float(),
		},
		FetchedAt: time.Now(),
	}
	positionsValue := 0.0
	root.Get("positions").ForEach(func(_, raw gjson.Result) bool {
		qty := raw.Get("longQuantity").Float() - raw.Get("shortQuantity").Float()
		marketValue := raw.Get("marketValue").Float()
		price := 0.0
		if qty != 0 {
			price = marketValue / qty
			if price < 0 {
				price = -price
			}
		}
		pos, err := types.PositionFromRaw(types.RawPosition{
			Symbol:            raw.Get("instrument.symbol").String(),
			AssetType:         raw.Get("instrument.assetType").String(),
			InstrumentType:    raw.Get("instrument.type").String(),
			LongQuantity:      raw.Get("longQuantity").Float(),
			ShortQuantity:     raw.Get("shortQuantity").Float(),
			AveragePrice:      raw.Get("averagePrice").Float(),
			AverageLongPrice:  raw.Get("averageLongPrice").Float(),
			AverageShortPrice: raw.Get("averageShortPrice").Float(),
			MarketValue:       marketValue,
			UnrealizedPL:      raw.Get("longOpenProfitLoss").Float() + raw.Get("shortOpenProfitLoss").Float(),
			Price:             price,
		})
		if err != nil {
			// Broker sometimes reports fully closed lots; skip them.
			return true
		}
		positionsValue += marketValue
		if pos.Kind == types.AssetOther {
			// Options, fixed income and the like count toward account
			// value but are never copied.
			return true
		}
		snap.Positions = append(snap.Positions, pos)
		return true
	})
	snap.Balances.PositionsValue = positionsValue
	return snap, nil
}

// PlaceOrder submits a day market order for one equity leg and returns the
// order id parsed from the Location header.
func (c *Client) PlaceOrder(ctx context.Context, accountRef string, intent types.OrderIntent) (string, error) {
	url := fmt.Sprintf("%s/trader/v1/accounts/%s/orders", c.baseURL, accountRef)
	payload := map[string]any{
		"orderType":         "MARKET",
		"session":           "NORMAL",
		"duration":          "DAY",
		"orderStrategyType": "SINGLE",
		"orderLegCollection": []map[string]any{{
			"instruction": string(intent.Action),
			"quantity":    intent.Quantity,
			"instrument": map[string]any{
				"symbol":    intent.Symbol,
				"assetType": "EQUITY",
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	_, header, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	return orderIDFromLocation(header.Get("Location")), nil
}

// orderIDFromLocation pulls the trailing order id out of the Location
// header the broker returns on order creation.
func orderIDFromLocation(location string) string {
	const marker = "/orders/"
	idx := strings.LastIndex(location, marker)
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(location[idx+len(marker):])
}

// ResolveAccountRef looks up the routing hash for a plain account number.
func (c *Client) ResolveAccountRef(ctx context.Context, accountNumber string) (string, error) {
	url := c.baseURL + "/trader/v1/accounts/accountNumbers"
	body, _, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	ref := ""
	gjson.ParseBytes(body).ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("accountNumber").String() == accountNumber {
			ref = entry.Get("hashValue").String()
			return false
		}
		return true
	})
	if ref == "" {
		return "", fmt.Errorf("no hash for account %s", accountNumber)
	}
	return ref, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode/100 != 2 {
		logger.Debugf("broker %s %s -> %d\n%s", method, url, resp.StatusCode, jsonutil.Pretty(string(data)))
		return nil, nil, &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header, nil
}
