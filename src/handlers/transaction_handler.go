package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/models"
	"github.com/username/gainfolio/backend/src/security/validation"
	"github.com/username/gainfolio/backend/src/services"
	"github.com/username/gainfolio/backend/src/utils"
)

type TransactionHandler struct {
	transactionService services.TransactionService
}

func NewTransactionHandler(service services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: service,
	}
}

func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var input services.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.CreateTransaction(userID, input)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Error("Failed to create transaction", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to create transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// parseListFilter builds a TransactionFilter from query parameters. Enum and
// date parameters are validated here so the caller gets a 400, not an empty
// result set.
func parseListFilter(r *http.Request) (services.TransactionFilter, error) {
	q := r.URL.Query()
	filter := services.TransactionFilter{
		AssetID: strings.TrimSpace(q.Get("asset_id")),
		Symbol:  strings.TrimSpace(q.Get("symbol")),
	}

	if v := q.Get("asset_type"); v != "" {
		assetType := models.AssetType(strings.ToLower(v))
		if !assetType.Valid() {
			return filter, fmt.Errorf("unknown asset_type %q", v)
		}
		filter.AssetType = assetType
	}
	if v := q.Get("transaction_type"); v != "" {
		kind := models.TransactionKind(strings.ToLower(v))
		if !kind.Valid() {
			return filter, fmt.Errorf("unknown transaction_type %q", v)
		}
		filter.Kind = kind
	}
	if v := q.Get("start_date"); v != "" {
		t, err := utils.ParseTimestamp(v)
		if err != nil {
			return filter, fmt.Errorf("invalid start_date %q", v)
		}
		filter.StartDate = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := utils.ParseTimestamp(v)
		if err != nil {
			return filter, fmt.Errorf("invalid end_date %q", v)
		}
		filter.EndDate = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	return filter, nil
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	transactions, err := h.transactionService.ListTransactions(userID, filter)
	if err != nil {
		logger.L.Error("Failed to list transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

func (h *TransactionHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		utils.SendJSONError(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.GetTransaction(userID, id)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			utils.SendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to get transaction", "userID", userID, "id", id, "error", err)
		utils.SendJSONError(w, "Failed to retrieve transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		utils.SendJSONError(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	var update services.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.UpdateTransaction(userID, id, update)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			utils.SendJSONError(w, "Transaction not found", http.StatusNotFound)
		case errors.Is(err, services.ErrValidation):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("Failed to update transaction", "userID", userID, "id", id, "error", err)
			utils.SendJSONError(w, "Failed to update transaction", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		utils.SendJSONError(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, id); err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			utils.SendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to delete transaction", "userID", userID, "id", id, "error", err)
		utils.SendJSONError(w, "Failed to delete transaction", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	deleted, err := h.transactionService.DeleteAllTransactions(userID)
	if err != nil {
		logger.L.Error("Failed to delete all transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error deleting transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

func (h *TransactionHandler) HandleGetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	assetID := r.PathValue("assetID")
	if assetID == "" {
		utils.SendJSONError(w, "asset id is required", http.StatusBadRequest)
		return
	}

	history, err := h.transactionService.GetTransactionHistory(userID, assetID)
	if err != nil {
		logger.L.Error("Failed to get transaction history", "userID", userID, "assetID", assetID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving history for asset %s: %v", assetID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// HandleImportTransactions ingests a CSV of transactions. The upload is
// size-capped and content-sniffed before any row is parsed.
func (h *TransactionHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file header reports size too large", "userID", userID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		logger.L.Warn("Invalid client-declared file type", "userID", userID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Info("Import file validated", "userID", userID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	result, err := h.transactionService.ImportCSV(file, userID)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			logger.L.Warn("CSV import rejected", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
			return
		}
		logger.L.Error("Internal error processing CSV import", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleCheckUserData reports whether the user has imported anything yet.
// The frontend uses it to route between dashboard and onboarding.
func (h *TransactionHandler) HandleCheckUserData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	transactions, err := h.transactionService.ListTransactions(userID, services.TransactionFilter{Limit: 1})
	if err != nil {
		logger.L.Error("Failed to check user data", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to check user data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"hasData": len(transactions) > 0})
}
