package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aristath/frontier/internal/clientdata"
)

// SearchResult is one symbol match.
type SearchResult struct {
	Symbol    string `json:"symbol" msgpack:"symbol"`
	Name      string `json:"name" msgpack:"name"`
	Exchange  string `json:"exchange" msgpack:"exchange"`
	QuoteType string `json:"quoteType" msgpack:"quote_type"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		ExchDisp  string `json:"exchDisp"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

const maxSearchResults = 10

// Search finds symbols matching query.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := strings.ToLower(query)

	var results []SearchResult
	if c.fromCache(clientdata.TableSearch, key, &results) {
		return results, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", fmt.Sprint(maxSearchResults))
	params.Set("newsCount", "0")

	var resp searchResponse
	if err := c.getJSON(ctx, "/v1/finance/search", params, &resp); err != nil {
		if c.fromStaleCache(clientdata.TableSearch, key, &results) {
			c.log.Warn().Err(err).Str("query", query).Msg("API failed, using stale cached search")
			return results, nil
		}
		return nil, fmt.Errorf("search for %q failed: %w", query, err)
	}

	results = make([]SearchResult, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		exchange := q.ExchDisp
		if exchange == "" {
			exchange = q.Exchange
		}
		results = append(results, SearchResult{
			Symbol:    q.Symbol,
			Name:      name,
			Exchange:  exchange,
			QuoteType: q.QuoteType,
		})
	}

	c.setCache(clientdata.TableSearch, key, results, clientdata.TTLSearch)
	return results, nil
}
