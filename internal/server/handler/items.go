package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/carmarket/carmarket/internal/chain"
	"github.com/carmarket/carmarket/internal/domain"
	"github.com/carmarket/carmarket/internal/market"
)

// ItemCache is the listing snapshot surface the items handler reads.
type ItemCache interface {
	Snapshot() ([]domain.Item, time.Time)
	Item(id uint64) (domain.Item, bool)
	Filter(query string, status domain.ItemStatus) []domain.Item
	Totals() market.Totals
	Refresh(ctx context.Context) ([]domain.Item, error)
}

// ItemWriter submits listings and purchases under the connected account.
type ItemWriter interface {
	ListItem(ctx context.Context, make_, model string, year uint16, price string) (string, error)
	PurchaseItem(ctx context.Context, id uint64) (string, error)
}

// ItemsHandler serves the marketplace listing endpoints.
type ItemsHandler struct {
	cache  ItemCache
	writer ItemWriter
	logger *slog.Logger
}

// NewItemsHandler creates an ItemsHandler.
func NewItemsHandler(cache ItemCache, writer ItemWriter, logger *slog.Logger) *ItemsHandler {
	return &ItemsHandler{cache: cache, writer: writer, logger: logger}
}

// itemView is the wire shape of an item, with the price rendered both in
// wei and in ether.
type itemView struct {
	domain.Item
	PriceEth string `json:"price_eth"`
}

func toViews(items []domain.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, itemView{Item: it, PriceEth: chain.WeiToEther(it.PriceWei)})
	}
	return views
}

// ListItems returns the current snapshot, optionally filtered.
// GET /api/items?query=...&status=all|available|sold
func (h *ItemsHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := domain.ParseItemStatus(q.Get("status"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := h.cache.Filter(q.Get("query"), status)
	_, updatedAt := h.cache.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      toViews(items),
		"updated_at": updatedAt,
	})
}

// GetItem returns a single item from the snapshot.
// GET /api/items/{id}
func (h *ItemsHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	item, ok := h.cache.Item(id)
	if !ok {
		writeDomainError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, itemView{Item: item, PriceEth: chain.WeiToEther(item.PriceWei)})
}

// GetTotals returns aggregate figures over the current snapshot.
// GET /api/items/totals
func (h *ItemsHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	t := h.cache.Totals()
	_, updatedAt := h.cache.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"available":     t.Available,
		"sold":          t.Sold,
		"price_sum_wei": t.PriceSumWei.String(),
		"price_sum_eth": chain.WeiToEther(t.PriceSumWei),
		"updated_at":    updatedAt,
	})
}

// RefreshItems forces a snapshot refresh from the chain.
// POST /api/items/refresh
func (h *ItemsHandler) RefreshItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.cache.Refresh(r.Context())
	if err != nil {
		logHandler(h.logger, "items").ErrorContext(r.Context(), "refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "listing refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toViews(items)})
}

// listItemRequest is the request body for CreateItem. Price is decimal
// ether, as entered by the seller.
type listItemRequest struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  uint16 `json:"year"`
	Price string `json:"price"`
}

// CreateItem submits a new listing under the connected account and waits
// for inclusion.
// POST /api/items
func (h *ItemsHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req listItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	txHash, err := h.writer.ListItem(r.Context(), req.Make, req.Model, req.Year, req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"tx_hash": txHash})
}

// PurchaseItem buys an item under the connected account and waits for
// inclusion.
// POST /api/items/{id}/purchase
func (h *ItemsHandler) PurchaseItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	txHash, err := h.writer.PurchaseItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash})
}
