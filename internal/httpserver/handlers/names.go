package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ans/internal/httpserver/mw"
)

type recordResponse struct {
	domain.Record
	Expired bool `json:"expired"`
}

func newRecordResponse(rec domain.Record, now time.Time) recordResponse {
	return recordResponse{Record: rec, Expired: rec.Expired(now)}
}

type registerRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Category string `json:"category"`
}

type transferRequest struct {
	NewOwner domain.Principal `json:"new_owner"`
}

type endpointRequest struct {
	Endpoint string `json:"endpoint"`
}

type listingRequest struct {
	Price int64 `json:"price"`
}

type buyRequest struct {
	Seller        domain.Principal `json:"seller"`
	ExpectedPrice int64            `json:"expected_price,omitempty"`
}

// caller returns the authenticated principal or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := mw.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing caller identity")
	}
	return p, ok
}

// Register binds a new name to the caller.
func Register(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rec, err := d.Registry.Register(r.Context(), p, req.Name, req.Endpoint, req.Category)
		if err != nil {
			writeRegistryError(w, r, d.Logger, err)
			return
		}
		w.Header().Set("Location", "/names/"+rec.Name)
		writeJSON(w, http.StatusCreated, newRecordResponse(rec, d.Registry.Now()))
	}
}

// Resolve returns the record bound to a name, expired or not.
func Resolve(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := d.Registry.Resolve(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeRegistryError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newRecordResponse(rec, d.Registry.Now()))
	}
}

func Transfer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req transferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rec, err := d.Registry.Transfer(r.Context(), p, chi.URLParam(r, "name"), req.NewOwner)
		respondRecord(w, r, d, rec, err)
	}
}

func UpdateEndpoint(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req endpointRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rec, err := d.Registry.UpdateEndpoint(r.Context(), p, chi.URLParam(r, "name"), req.Endpoint)
		respondRecord(w, r, d, rec, err)
	}
}

func ListForSale(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req listingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rec, err := d.Registry.ListForSale(r.Context(), p, chi.URLParam(r, "name"), req.Price)
		respondRecord(w, r, d, rec, err)
	}
}

func Unlist(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		rec, err := d.Registry.Unlist(r.Context(), p, chi.URLParam(r, "name"))
		respondRecord(w, r, d, rec, err)
	}
}

// Buy purchases a listed name. The seller and, optionally, the price the
// buyer saw must still match at commit time.
func Buy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req buyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		rec, err := d.Registry.Buy(r.Context(), p, chi.URLParam(r, "name"), req.Seller, req.ExpectedPrice)
		respondRecord(w, r, d, rec, err)
	}
}

func Renew(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		rec, err := d.Registry.Renew(r.Context(), p, chi.URLParam(r, "name"))
		respondRecord(w, r, d, rec, err)
	}
}

func respondRecord(w http.ResponseWriter, r *http.Request, d deps.Deps, rec domain.Record, err error) {
	if err != nil {
		writeRegistryError(w, r, d.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordResponse(rec, d.Registry.Now()))
}
