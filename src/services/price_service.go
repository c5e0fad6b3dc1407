// backend/src/services/price_service.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/database"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/metrics"
	"github.com/username/gainfolio/backend/src/model"
	"github.com/username/gainfolio/backend/src/models"
)

const (
	PriceStatusOK          = "OK"
	PriceStatusUnavailable = "UNAVAILABLE"

	coinGeckoPriceURL = "https://api.coingecko.com/api/v3/simple/price"

	// A valid User-Agent is crucial for the Yahoo endpoints.
	priceUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	ckQuote = "quote_%s_%s"
)

// knownCryptoIDs seeds the symbol to CoinGecko id mapping for the majors.
// Anything else falls back to the lowercased symbol, which CoinGecko accepts
// for coins whose id matches their ticker.
var knownCryptoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
}

// Structs for Yahoo Finance API responses
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string      `json:"symbol"`
			RegularMarketPrice json.Number `json:"regularMarketPrice"`
			Currency           string      `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
				Currency           string      `json:"currency"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*json.Number `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// priceServiceImpl fetches crypto quotes from CoinGecko and stock quotes
// from Yahoo Finance, behind a short-lived quote cache. Yahoo requests need
// a cookie jar and a crumb.
type priceServiceImpl struct {
	httpClient http.Client
	crumb      string
	quoteCache *cache.Cache
}

// NewPriceService creates a new instance of the price service.
// It initializes the HTTP client with a cookie jar and fetches the Yahoo crumb.
func NewPriceService() PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}

	s := &priceServiceImpl{
		httpClient: client,
		quoteCache: cache.New(config.Cfg.PriceCacheTTL, CacheCleanupInterval),
	}

	if err := s.initializeYahooSession(); err != nil {
		logger.L.Error("Failed to initialize Yahoo Finance session. Stock price fetching may fail.", "error", err)
	}

	return s
}

// initializeYahooSession visits a Yahoo Finance page to get necessary cookies and the crumb.
func (s *priceServiceImpl) initializeYahooSession() error {
	logger.L.Info("Initializing Yahoo Finance session to get crumb and cookies...")
	// We use a less common ticker to avoid heavily cached pages.
	initURL := "https://finance.yahoo.com/quote/VHYL.L"
	req, err := http.NewRequest("GET", initURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", priceUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Yahoo response body: %w", err)
	}

	re := regexp.MustCompile(`"CrumbStore":{"crumb":"(.*?)"}`)
	matches := re.FindStringSubmatch(string(body))

	if len(matches) < 2 {
		return fmt.Errorf("could not find crumb in Yahoo Finance response. The page structure may have changed")
	}

	s.crumb = matches[1]
	logger.L.Info("Successfully obtained Yahoo Finance crumb.")
	return nil
}

// GetCurrentPrices resolves quotes for a batch of symbols of one asset class.
// Every requested symbol appears in the result; lookups that fail stay
// UNAVAILABLE rather than aborting the batch.
func (s *priceServiceImpl) GetCurrentPrices(symbols []string, assetType models.AssetType) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo)
	toProcess := make(map[string]bool)
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		result[symbol] = PriceInfo{Symbol: symbol, Status: PriceStatusUnavailable}
		toProcess[symbol] = true
	}
	if len(toProcess) == 0 {
		return result, nil
	}

	remaining := make([]string, 0, len(toProcess))
	for symbol := range toProcess {
		if cached, found := s.quoteCache.Get(fmt.Sprintf(ckQuote, assetType, symbol)); found {
			result[symbol] = cached.(PriceInfo)
			continue
		}
		remaining = append(remaining, symbol)
	}
	if len(remaining) == 0 {
		return result, nil
	}
	sort.Strings(remaining)

	var fetched map[string]PriceInfo
	var err error
	provider := "coingecko"
	switch assetType {
	case models.AssetCrypto:
		fetched, err = s.fetchCryptoPrices(remaining)
	case models.AssetStock:
		provider = "yahoo"
		fetched, err = s.fetchStockPrices(remaining)
	default:
		return result, fmt.Errorf("unsupported asset type %q for price lookup", assetType)
	}
	if err != nil {
		logger.L.Error("An error occurred during the price fetch process", "assetType", assetType, "error", err)
	}

	for symbol, priceInfo := range fetched {
		if priceInfo.Status == PriceStatusOK {
			result[symbol] = priceInfo
			s.quoteCache.SetDefault(fmt.Sprintf(ckQuote, assetType, symbol), priceInfo)
		}
	}

	for _, symbol := range remaining {
		if result[symbol].Status == PriceStatusOK {
			metrics.PriceLookupsTotal.WithLabelValues(provider, "ok").Inc()
		} else {
			metrics.PriceLookupsTotal.WithLabelValues(provider, "error").Inc()
		}
	}

	return result, nil
}

// fetchCryptoPrices retrieves USD quotes for a batch of symbols with a single
// CoinGecko simple/price call.
func (s *priceServiceImpl) fetchCryptoPrices(symbols []string) (map[string]PriceInfo, error) {
	ids, idToSymbol := s.resolveCoinGeckoIDs(symbols)

	endpoint := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", coinGeckoPriceURL, strings.Join(ids, ","))
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", priceUserAgent)
	// The keyless free tier works but is rate-limited harder.
	if config.Cfg.CoinGeckoAPIKey != "" {
		req.Header.Set("x-cg-demo-api-key", config.Cfg.CoinGeckoAPIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call CoinGecko simple price API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("coingecko API returned non-OK status %d. Body: %s", resp.StatusCode, string(bodyBytes))
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode CoinGecko response: %w", err)
	}

	prices := make(map[string]PriceInfo)
	for id, quote := range payload {
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}
		raw, ok := quote["usd"]
		if !ok {
			logger.L.Warn("CoinGecko: no usd quote returned", "id", id)
			continue
		}
		price, parseErr := decimal.NewFromString(raw.String())
		if parseErr != nil {
			logger.L.Warn("CoinGecko: unparseable price", "id", id, "raw", raw.String())
			continue
		}
		prices[symbol] = PriceInfo{Symbol: symbol, Price: price, Currency: "USD", Status: PriceStatusOK}
	}
	return prices, nil
}

// resolveCoinGeckoIDs maps ticker symbols to CoinGecko coin ids, consulting
// the database cache first and persisting fallback guesses for next time.
func (s *priceServiceImpl) resolveCoinGeckoIDs(symbols []string) ([]string, map[string]string) {
	mappings, err := model.GetCryptoIDsBySymbols(database.DB, symbols)
	if err != nil {
		logger.L.Warn("Could not read crypto id mappings, using fallbacks", "error", err)
		mappings = map[string]model.CryptoIDMap{}
	}

	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		var id string
		if mapping, ok := mappings[symbol]; ok {
			id = mapping.CoinGeckoID
		} else {
			id, ok = knownCryptoIDs[symbol]
			if !ok {
				id = strings.ToLower(symbol)
			}
			if insertErr := model.InsertCryptoID(database.DB, model.CryptoIDMap{Symbol: symbol, CoinGeckoID: id}); insertErr != nil {
				logger.L.Debug("Could not persist crypto id mapping", "symbol", symbol, "error", insertErr)
			}
		}
		ids = append(ids, id)
		idToSymbol[id] = symbol
	}
	return ids, idToSymbol
}

// fetchStockPrices walks the symbols one by one against Yahoo Finance.
func (s *priceServiceImpl) fetchStockPrices(symbols []string) (map[string]PriceInfo, error) {
	// If the crumb is missing, try to re-initialize the session.
	if s.crumb == "" {
		logger.L.Warn("Yahoo crumb is missing, attempting to re-initialize session.")
		if err := s.initializeYahooSession(); err != nil {
			logger.L.Error("Failed to re-initialize Yahoo session", "error", err)
		}
	}

	prices := make(map[string]PriceInfo)
	for _, symbol := range symbols {
		time.Sleep(250 * time.Millisecond) // Respectful delay

		price, currency, err := s.getQuotePrice(symbol)
		if err != nil {
			logger.L.Warn("Yahoo quote lookup failed, falling back to chart endpoint", "symbol", symbol, "error", err)
			price, currency, err = s.getChartPrice(symbol)
		}
		if err != nil {
			logger.L.Warn("Yahoo Fetch: Could not get price", "symbol", symbol, "error", err)
			continue
		}

		logger.L.Info("Yahoo Fetch: Successfully got price", "symbol", symbol, "price", price)
		prices[symbol] = PriceInfo{Symbol: symbol, Price: price, Currency: currency, Status: PriceStatusOK}
	}
	return prices, nil
}

// getQuotePrice uses Yahoo's v7 quote endpoint, which requires the crumb.
func (s *priceServiceImpl) getQuotePrice(symbol string) (decimal.Decimal, string, error) {
	quoteURL := fmt.Sprintf("https://query2.finance.yahoo.com/v7/finance/quote?symbols=%s&crumb=%s", symbol, s.crumb)
	req, err := http.NewRequest("GET", quoteURL, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	req.Header.Set("User-Agent", priceUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to call Yahoo quote API for symbol %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return decimal.Zero, "", fmt.Errorf("yahoo quote API returned non-OK status %d for symbol %s. Body: %s", resp.StatusCode, symbol, string(bodyBytes))
	}

	var quoteData yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteData); err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to decode Yahoo quote response for symbol %s: %w", symbol, err)
	}

	if quoteData.QuoteResponse.Error != nil || len(quoteData.QuoteResponse.Result) == 0 {
		return decimal.Zero, "", fmt.Errorf("yahoo quote API returned an error or no result for symbol %s", symbol)
	}

	quote := quoteData.QuoteResponse.Result[0]
	if quote.RegularMarketPrice == "" {
		return decimal.Zero, "", fmt.Errorf("yahoo quote API returned no market price for symbol %s", symbol)
	}
	price, err := decimal.NewFromString(quote.RegularMarketPrice.String())
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("unparseable market price %q for symbol %s", quote.RegularMarketPrice.String(), symbol)
	}

	currency := quote.Currency
	if currency == "" {
		currency = "USD"
	}
	return price, currency, nil
}

// getChartPrice is the fallback path: Yahoo's v8 chart endpoint works without
// a crumb. It prefers the meta market price and otherwise takes the last
// non-null daily close.
func (s *priceServiceImpl) getChartPrice(symbol string) (decimal.Decimal, string, error) {
	chartURL := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=1d&range=5d", symbol)
	req, err := http.NewRequest("GET", chartURL, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	req.Header.Set("User-Agent", priceUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to call Yahoo chart API for symbol %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, "", fmt.Errorf("yahoo chart API returned non-OK status %d for symbol %s", resp.StatusCode, symbol)
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to decode Yahoo chart response for symbol %s: %w", symbol, err)
	}

	if chartData.Chart.Error != nil || len(chartData.Chart.Result) == 0 {
		return decimal.Zero, "", fmt.Errorf("yahoo chart API returned an error or no result for symbol %s", symbol)
	}

	result := chartData.Chart.Result[0]
	currency := result.Meta.Currency
	if currency == "" {
		currency = "USD"
	}

	if result.Meta.RegularMarketPrice != "" {
		price, parseErr := decimal.NewFromString(result.Meta.RegularMarketPrice.String())
		if parseErr == nil {
			return price, currency, nil
		}
	}

	// Walk the daily closes backwards for the most recent session.
	for _, quote := range result.Indicators.Quote {
		for i := len(quote.Close) - 1; i >= 0; i-- {
			if quote.Close[i] == nil {
				continue
			}
			price, parseErr := decimal.NewFromString(quote.Close[i].String())
			if parseErr != nil {
				continue
			}
			return price, currency, nil
		}
	}

	return decimal.Zero, "", fmt.Errorf("yahoo chart API returned no usable price for symbol %s", symbol)
}
