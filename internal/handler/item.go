package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/model"
)

// Catalog is the part of service.CatalogService the handlers use.
type Catalog interface {
	ListAll(ctx context.Context) ([]model.Item, error)
	Get(ctx context.Context, id int64) (*model.Item, error)
	Insert(ctx context.Context, name string, price, marketCap *float64) (*model.Item, error)
	Update(ctx context.Context, id int64, name string, price, marketCap *float64) (*model.Item, error)
	Delete(ctx context.Context, id int64) error
}

// ItemHandler serves the catalog pages and the read-only JSON API.
//
// Every route here sits behind auth.RequireSession, so handlers can assume
// a signed-in user.
type ItemHandler struct {
	catalog Catalog
	pages   *Renderer
	logger  *slog.Logger
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(catalog Catalog, pages *Renderer, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{catalog: catalog, pages: pages, logger: logger}
}

// HandleList renders every item.
//
// HTTP: GET /items
func (h *ItemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListAll(r.Context())
	if err != nil {
		h.logger.Error("listing items failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.pages.render(w, r, http.StatusOK, "items", PageData{Title: "Coins", Items: items})
}

// HandleNewForm renders an empty item form.
//
// HTTP: GET /items/new
func (h *ItemHandler) HandleNewForm(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, "item_form", PageData{
		Title:      "Add a coin",
		FormAction: "/items",
	})
}

// HandleCreate adds an item.
//
// HTTP: POST /items (form: name, price, market_cap)
func (h *ItemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	name, price, marketCap, err := parseItemForm(r)
	if err == nil {
		_, err = h.catalog.Insert(r.Context(), name, price, marketCap)
	}
	if err != nil {
		h.failForm(w, r, "/items/new", err)
		return
	}

	h.pages.redirectWithFlash(w, r, "/items", flashSuccess, "Coin added.")
}

// HandleEditForm renders the form for one item.
//
// HTTP: GET /items/{id}
func (h *ItemHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		h.pages.redirectWithFlash(w, r, "/items", flashDanger, "That coin doesn't exist.")
		return
	}

	item, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.pages.redirectWithFlash(w, r, "/items", flashDanger, "That coin doesn't exist.")
			return
		}
		h.logger.Error("loading item failed", slog.Int64("id", id), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.pages.render(w, r, http.StatusOK, "item_form", PageData{
		Title:      "Edit " + item.Name,
		Item:       item,
		FormAction: fmt.Sprintf("/items/%d", item.ID),
	})
}

// HandleUpdate overwrites an item with the submitted form.
//
// HTTP: POST /items/{id} (form: name, price, market_cap)
//
// All three fields are written. A blank price or market cap clears it.
func (h *ItemHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		h.pages.redirectWithFlash(w, r, "/items", flashDanger, "That coin doesn't exist.")
		return
	}

	name, price, marketCap, err := parseItemForm(r)
	if err == nil {
		_, err = h.catalog.Update(r.Context(), id, name, price, marketCap)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.pages.redirectWithFlash(w, r, "/items", flashDanger, "That coin doesn't exist.")
			return
		}
		h.failForm(w, r, fmt.Sprintf("/items/%d", id), err)
		return
	}

	h.pages.redirectWithFlash(w, r, "/items", flashSuccess, "Coin updated.")
}

// HandleDelete removes an item. Deleting one that is already gone still
// lands back on the list without an error.
//
// HTTP: POST /items/{id}/delete
func (h *ItemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		http.Redirect(w, r, "/items", http.StatusSeeOther)
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting item failed", slog.Int64("id", id), slog.String("error", err.Error()))
		h.pages.redirectWithFlash(w, r, "/items", flashDanger, "Could not delete the coin.")
		return
	}

	h.pages.redirectWithFlash(w, r, "/items", flashSuccess, "Coin deleted.")
}

// HandleAPIList returns the catalog as JSON.
//
// HTTP: GET /api/items
//
// RESPONSE FORMAT:
//
//	[{"id":1,"name":"Bitcoin","price":50000,"marketCap":1000000000000}, ...]
//
// Unknown values are null.
func (h *ItemHandler) HandleAPIList(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListAll(r.Context())
	if err != nil {
		h.logger.Error("listing items failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleAPIGet returns one item as JSON, or a 404 error body.
//
// HTTP: GET /api/items/{id}
func (h *ItemHandler) HandleAPIGet(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		writeError(w, apperror.NotFound("item", chi.URLParam(r, "id")))
		return
	}

	item, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// failForm reports a rejected form submission. Validation problems are
// the user's to fix and go back to the form; anything else is logged.
func (h *ItemHandler) failForm(w http.ResponseWriter, r *http.Request, back string, err error) {
	var appErr *apperror.AppError
	if errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) {
		h.pages.redirectWithFlash(w, r, back, flashDanger, appErr.Message)
		return
	}

	h.logger.Error("saving item failed", slog.String("error", err.Error()))
	h.pages.redirectWithFlash(w, r, back, flashDanger, "Something went wrong. Please try again.")
}

// itemID reads the {id} URL parameter. Non-numeric IDs are reported as
// absent, the same as an ID with no row.
func itemID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseItemForm reads name, price and market_cap. Blank numbers become nil.
func parseItemForm(r *http.Request) (string, *float64, *float64, error) {
	if err := r.ParseForm(); err != nil {
		return "", nil, nil, apperror.ValidationFailed("form", "could not read the form")
	}

	price, err := parseAmount("price", r.PostFormValue("price"))
	if err != nil {
		return "", nil, nil, err
	}
	marketCap, err := parseAmount("market_cap", r.PostFormValue("market_cap"))
	if err != nil {
		return "", nil, nil, err
	}

	return r.PostFormValue("name"), price, marketCap, nil
}

// parseAmount parses an optional number field. Thousands separators are
// tolerated because people paste prices like "1,234.56".
func parseAmount(field, raw string) (*float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be a number", strings.ReplaceAll(field, "_", " ")))
	}
	return &v, nil
}
