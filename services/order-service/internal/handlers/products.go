package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"orderstream/services/order-service/internal/storage"
)

// Products handles the thin product CRUD boundary. Order creation validates
// product codes against this catalog.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listProducts(w, r)
	case http.MethodPost:
		h.createProduct(w, r)
	case http.MethodPut:
		h.updateProduct(w, r)
	case http.MethodDelete:
		h.deleteProduct(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		http.Error(w, "failed to load products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []storage.Product{}
	}
	writeJSON(w, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p storage.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	p.Code = strings.TrimSpace(p.Code)
	if p.Code == "" || p.ProductName == "" || p.Price <= 0 {
		http.Error(w, "code, productName and a positive price are required", http.StatusBadRequest)
		return
	}

	err := h.products.Create(r.Context(), p)
	if errors.Is(err, storage.ErrProductExists) {
		http.Error(w, "product code already exists", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "failed to create product", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p storage.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(p.Code) == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	found, err := h.products.Update(r.Context(), p)
	if err != nil {
		http.Error(w, "failed to update product", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	found, err := h.products.Delete(r.Context(), code)
	if err != nil {
		http.Error(w, "failed to delete product", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
