package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/store"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// ContractReader loads persisted contracts; *store.Repository satisfies it
type ContractReader interface {
	LatestContract(ctx context.Context, symbol string) (*contracts.SignalContract, error)
}

// ContractHandler serves persisted signal contracts
type ContractHandler struct {
	reader ContractReader
	logger *logger.Logger
}

// NewContractHandler creates a new contract handler
func NewContractHandler(reader ContractReader, log *logger.Logger) *ContractHandler {
	return &ContractHandler{
		reader: reader,
		logger: log,
	}
}

// GetLatest returns the newest persisted contract for a symbol
// GET /api/contracts/{symbol}
func (h *ContractHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	symbol, err := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	contract, err := h.reader.LatestContract(r.Context(), symbol)
	if errors.Is(err, store.ErrContractNotFound) {
		respondError(w, http.StatusNotFound, "No contract for "+symbol)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load contract")
		respondError(w, http.StatusInternalServerError, "Failed to load contract")
		return
	}

	respondJSON(w, http.StatusOK, contract)
}
