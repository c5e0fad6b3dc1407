package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/database"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/model"
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/services"
	"github.com/username/gainfolio/backend/src/utils"
)

type TaxHandler struct {
	taxService   services.TaxService
	emailService services.EmailService
}

func NewTaxHandler(taxService services.TaxService, emailService services.EmailService) *TaxHandler {
	return &TaxHandler{
		taxService:   taxService,
		emailService: emailService,
	}
}

func parseYearParam(r *http.Request) (int, error) {
	yearStr := r.URL.Query().Get("year")
	if yearStr == "" {
		return 0, errors.New("year query parameter is required")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1900 || year > 2200 {
		return 0, fmt.Errorf("invalid year %q", yearStr)
	}
	return year, nil
}

func (h *TaxHandler) HandleGetTaxYearSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	year, err := parseYearParam(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.taxService.GetTaxYearSummary(userID, year)
	if err != nil {
		logger.L.Error("Failed to compute tax year summary", "userID", userID, "year", year, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing tax summary for year %d: %v", year, err), http.StatusInternalServerError)
		return
	}

	// Summaries for closed years rarely change, so let clients revalidate
	// cheaply with If-None-Match.
	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for tax summary", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				logger.L.Debug("ETag match for tax summary", "userID", userID, "year", year)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error encoding tax summary response", "userID", userID, "error", err)
	}
}

func (h *TaxHandler) HandleGetForm8949(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	year, err := parseYearParam(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.taxService.GetForm8949(userID, year)
	if err != nil {
		logger.L.Error("Failed to build Form 8949", "userID", userID, "year", year, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error building Form 8949 for year %d: %v", year, err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.Form8949Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tax_year": year,
		"entries":  entries,
	})
}

func (h *TaxHandler) HandleGetUnrealizedGains(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	report, err := h.taxService.GetUnrealizedGains(userID)
	if err != nil {
		logger.L.Error("Failed to compute unrealized gains", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing unrealized gains for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (h *TaxHandler) HandleGetHarvestingOpportunities(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	report, err := h.taxService.GetHarvestingOpportunities(userID)
	if err != nil {
		logger.L.Error("Failed to compute harvesting opportunities", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing harvesting opportunities for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (h *TaxHandler) HandleGetCostBasis(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	assetID := strings.TrimSpace(r.URL.Query().Get("asset_id"))
	if assetID == "" {
		utils.SendJSONError(w, "asset_id query parameter is required", http.StatusBadRequest)
		return
	}

	methodStr := r.URL.Query().Get("method")
	if methodStr == "" {
		methodStr = config.Cfg.DefaultCostBasisMethod
	}
	method, err := models.ParseCostBasisMethod(methodStr)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid method %q (supported: fifo, lifo, average)", methodStr), http.StatusBadRequest)
		return
	}

	calc, err := h.taxService.GetCostBasis(userID, assetID, method)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMethod) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Error("Failed to compute cost basis", "userID", userID, "assetID", assetID, "method", method, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing cost basis for asset %s: %v", assetID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calc)
}

type emailTaxSummaryRequest struct {
	Year int `json:"year"`
}

// HandleEmailTaxSummary sends the year's summary to the user's registered
// email address.
func (h *TaxHandler) HandleEmailTaxSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req emailTaxSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Year < 1900 || req.Year > 2200 {
		utils.SendJSONError(w, fmt.Sprintf("invalid year %d", req.Year), http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to load user for tax summary email", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to send tax summary", http.StatusInternalServerError)
		return
	}

	summary, err := h.taxService.GetTaxYearSummary(userID, req.Year)
	if err != nil {
		logger.L.Error("Failed to compute tax summary for email", "userID", userID, "year", req.Year, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error computing tax summary for year %d: %v", req.Year, err), http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendTaxSummaryEmail(user.Email, user.Username, summary); err != nil {
		logger.L.Error("Failed to send tax summary email", "userID", userID, "year", req.Year, "error", err)
		utils.SendJSONError(w, "Failed to send tax summary email", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Tax summary emailed", "userID", userID, "year", req.Year)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": fmt.Sprintf("Tax summary for %d sent to %s", req.Year, user.Email),
	})
}
