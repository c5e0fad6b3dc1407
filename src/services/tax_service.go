// src/services/tax_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/metrics"
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/processors"
)

const (
	// Long-lived caches for full calculation results; mutations invalidate.
	ckTaxYearSummary = "res_tax_summary_user_%d_year_%d"
	ckForm8949       = "res_form_8949_user_%d_year_%d"
	ckCostBasis      = "res_cost_basis_user_%d_asset_%s_method_%s"

	// Short-lived caches; these embed market prices that go stale on their own.
	ckUnrealizedReport = "agg_unrealized_report_user_%d"
	ckHarvestReport    = "agg_harvest_report_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type taxServiceImpl struct {
	store        TransactionStore
	priceService PriceService
	matcher      *processors.LotMatcher
	valuer       *processors.UnrealizedPositionValuer
	reportCache  *cache.Cache
}

func NewTaxService(store TransactionStore, priceService PriceService, reportCache *cache.Cache) TaxService {
	return &taxServiceImpl{
		store:        store,
		priceService: priceService,
		matcher:      processors.NewLotMatcher(),
		valuer:       processors.NewUnrealizedPositionValuer(),
		reportCache:  reportCache,
	}
}

func (s *taxServiceImpl) GetTaxYearSummary(userID int64, year int) (*models.TaxYearSummary, error) {
	cacheKey := fmt.Sprintf(ckTaxYearSummary, userID, year)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for tax year summary", "userID", userID, "year", year)
		metrics.ReportCacheHitsTotal.WithLabelValues("tax_summary").Inc()
		return cached.(*models.TaxYearSummary), nil
	}
	logger.L.Info("Cache miss for tax year summary, computing", "userID", userID, "year", year)
	metrics.TaxComputationsTotal.WithLabelValues("tax_summary").Inc()

	transactions, err := s.store.ListByUser(userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}

	aggregator, err := processors.NewTaxYearAggregator(models.MethodFIFO)
	if err != nil {
		return nil, err
	}
	summary, err := aggregator.SummarizeTaxYear(transactions, year)
	if err != nil {
		return nil, err
	}

	s.reportCache.Set(cacheKey, summary, cache.NoExpiration)
	return summary, nil
}

func (s *taxServiceImpl) GetForm8949(userID int64, year int) ([]models.Form8949Entry, error) {
	cacheKey := fmt.Sprintf(ckForm8949, userID, year)
	if cached, found := s.reportCache.Get(cacheKey); found {
		metrics.ReportCacheHitsTotal.WithLabelValues("form_8949").Inc()
		return cached.([]models.Form8949Entry), nil
	}
	metrics.TaxComputationsTotal.WithLabelValues("form_8949").Inc()

	summary, err := s.GetTaxYearSummary(userID, year)
	if err != nil {
		return nil, err
	}

	aggregator, err := processors.NewTaxYearAggregator(models.MethodFIFO)
	if err != nil {
		return nil, err
	}
	entries := aggregator.BuildForm8949(summary)
	if entries == nil {
		entries = []models.Form8949Entry{}
	}

	s.reportCache.Set(cacheKey, entries, cache.NoExpiration)
	return entries, nil
}

func (s *taxServiceImpl) GetUnrealizedGains(userID int64) (*UnrealizedReport, error) {
	cacheKey := fmt.Sprintf(ckUnrealizedReport, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for unrealized report", "userID", userID)
		metrics.ReportCacheHitsTotal.WithLabelValues("unrealized").Inc()
		return cached.(*UnrealizedReport), nil
	}
	metrics.TaxComputationsTotal.WithLabelValues("unrealized").Inc()

	transactions, err := s.store.ListByUser(userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}

	asOf := time.Now().UTC()
	prices := s.lookupPrices(transactions)

	holdings, err := s.valuer.ValuePositions(transactions, prices, asOf)
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []models.UnrealizedPosition{}
	}

	total := decimal.Zero
	for _, holding := range holdings {
		total = total.Add(holding.UnrealizedGainLoss)
	}

	report := &UnrealizedReport{
		AsOfDate:                asOf,
		TotalUnrealizedGainLoss: total,
		Holdings:                holdings,
	}
	s.reportCache.Set(cacheKey, report, DefaultCacheExpiration)
	return report, nil
}

func (s *taxServiceImpl) GetHarvestingOpportunities(userID int64) (*HarvestReport, error) {
	cacheKey := fmt.Sprintf(ckHarvestReport, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		metrics.ReportCacheHitsTotal.WithLabelValues("harvest").Inc()
		return cached.(*HarvestReport), nil
	}
	metrics.TaxComputationsTotal.WithLabelValues("harvest").Inc()

	unrealized, err := s.GetUnrealizedGains(userID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.ListByUser(userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}

	candidates := s.valuer.HarvestCandidates(unrealized.Holdings, transactions, unrealized.AsOfDate)
	if candidates == nil {
		candidates = []models.HarvestCandidate{}
	}

	total := decimal.Zero
	for _, candidate := range candidates {
		total = total.Add(candidate.UnrealizedLoss)
	}

	report := &HarvestReport{
		AsOfDate:               unrealized.AsOfDate,
		Opportunities:          candidates,
		TotalHarvestableLosses: total,
	}
	s.reportCache.Set(cacheKey, report, DefaultCacheExpiration)
	return report, nil
}

func (s *taxServiceImpl) GetCostBasis(userID int64, assetID string, method models.CostBasisMethod) (*models.CostBasisCalculation, error) {
	normalized, err := models.ParseCostBasisMethod(string(method))
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf(ckCostBasis, userID, assetID, normalized)
	if cached, found := s.reportCache.Get(cacheKey); found {
		metrics.ReportCacheHitsTotal.WithLabelValues("cost_basis").Inc()
		return cached.(*models.CostBasisCalculation), nil
	}
	metrics.TaxComputationsTotal.WithLabelValues("cost_basis").Inc()

	transactions, err := s.store.ListByUser(userID, TransactionFilter{AssetID: assetID})
	if err != nil {
		return nil, err
	}

	inventory, _, err := s.matcher.MatchLots(transactions, normalized)
	if err != nil {
		return nil, err
	}

	calc := processors.BuildCostBasisCalculation(assetID, inventory, normalized)
	s.reportCache.Set(cacheKey, &calc, cache.NoExpiration)
	return &calc, nil
}

// InvalidateUserCache drops every cached report for the user. Keys embed
// "user_<id>" followed by an underscore or the end of the key.
func (s *taxServiceImpl) InvalidateUserCache(userID int64) {
	tag := fmt.Sprintf("user_%d", userID)
	deleted := 0
	for key := range s.reportCache.Items() {
		idx := strings.Index(key, tag)
		if idx < 0 {
			continue
		}
		end := idx + len(tag)
		if end == len(key) || key[end] == '_' {
			s.reportCache.Delete(key)
			deleted++
		}
	}
	logger.L.Info("Invalidated cached reports for user", "userID", userID, "deleted", deleted)
}

// lookupPrices resolves current prices for every symbol still held. Lookup
// failures degrade to missing entries; affected positions value at zero.
func (s *taxServiceImpl) lookupPrices(transactions []models.Transaction) map[string]decimal.Decimal {
	net := make(map[string]decimal.Decimal)
	assetTypes := make(map[string]models.AssetType)
	for _, tx := range transactions {
		if _, ok := assetTypes[tx.Symbol]; !ok {
			assetTypes[tx.Symbol] = tx.AssetType
		}
		if tx.Kind.Acquires() {
			net[tx.Symbol] = net[tx.Symbol].Add(tx.Quantity)
		} else if tx.Kind.Disposes() {
			net[tx.Symbol] = net[tx.Symbol].Sub(tx.Quantity)
		}
	}

	symbolsByType := make(map[models.AssetType][]string)
	for symbol, quantity := range net {
		if quantity.IsPositive() {
			assetType := assetTypes[symbol]
			symbolsByType[assetType] = append(symbolsByType[assetType], symbol)
		}
	}

	prices := make(map[string]decimal.Decimal)
	for assetType, symbols := range symbolsByType {
		quotes, err := s.priceService.GetCurrentPrices(symbols, assetType)
		if err != nil {
			logger.L.Warn("Price lookup failed, valuing affected symbols at zero", "assetType", assetType, "error", err)
			continue
		}
		for symbol, quote := range quotes {
			if quote.Status == PriceStatusOK {
				prices[symbol] = quote.Price
			}
		}
	}
	return prices
}
