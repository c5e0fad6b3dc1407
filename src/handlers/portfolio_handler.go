package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/services"
	"github.com/username/gainfolio/backend/src/utils"
)

type PortfolioHandler struct {
	taxService services.TaxService
}

func NewPortfolioHandler(taxService services.TaxService) *PortfolioHandler {
	return &PortfolioHandler{
		taxService: taxService,
	}
}

// HandleGetHoldings returns every open position priced as of now. Positions
// whose market price could not be fetched come back with a zero price rather
// than dropping out of the list.
func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	report, err := h.taxService.GetUnrealizedGains(userID)
	if err != nil {
		logger.L.Error("Failed to retrieve holdings", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving holdings for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if report.Holdings == nil {
		report.Holdings = []models.UnrealizedPosition{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.L.Error("Error encoding holdings response", "userID", userID, "error", err)
	}
}
