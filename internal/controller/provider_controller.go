package controller

import (
	"net/http"
	"strings"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/providers"
)

// StrategyCatalog lists and selects payment strategies.
// *providers.Registry implements it.
type StrategyCatalog interface {
	All() []providers.Strategy
	Best(currency, country string) providers.Strategy
}

type ProviderController struct {
	catalog StrategyCatalog
}

func NewProviderController(catalog StrategyCatalog) *ProviderController {
	return &ProviderController{catalog: catalog}
}

// List handles GET /api/v1/providers
func (h *ProviderController) List(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.All()
	out := make([]*ProviderResponse, 0, len(all))
	for _, s := range all {
		out = append(out, FromStrategy(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// Best handles GET /api/v1/providers/best?currency=EUR&country=FR
func (h *ProviderController) Best(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(r.URL.Query().Get("currency"))
	country := strings.ToUpper(r.URL.Query().Get("country"))
	if len(currency) != 3 {
		writeError(w, domainErrors.NewValidationError("currency", "must be a 3-letter ISO code"))
		return
	}

	s := h.catalog.Best(currency, country)
	if s == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: domainErrors.ErrNoStrategyAvailable.Error(), Code: "no_strategy"})
		return
	}
	writeJSON(w, http.StatusOK, FromStrategy(s))
}
