package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/nullable"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/app/rides"
	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 1 << 20

type Server struct {
	Rides  *rides.Service
	Users  *users.Service
	Tokens *tokens.Issuer
	Idem   idempotency.Store

	log      *slog.Logger
	validate *validator.Validate
}

func NewServer(ridesSvc *rides.Service, usersSvc *users.Service, issuer *tokens.Issuer, idem idempotency.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	// One validator serves request bodies and the user service, so both accept the same emails.
	var v *validator.Validate
	if usersSvc != nil && usersSvc.Validate != nil {
		v = usersSvc.Validate
	} else {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		Rides:    ridesSvc,
		Users:    usersSvc,
		Tokens:   issuer,
		Idem:     idem,
		log:      log,
		validate: v,
	}
}

// decodeBody reads a JSON body into dst and runs struct validation. It writes the error response
// itself and reports whether the handler may continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			writeValidation(w, r, "missing request body", nil)
		case errors.Is(err, openapi_types.ErrValidationEmail):
			writeValidation(w, r, "invalid request body", map[string]any{"email": "must be a valid email address"})
		case errors.As(err, &typeErr) && typeErr.Field != "":
			writeValidation(w, r, "invalid request body", map[string]any{typeErr.Field: "must be a " + typeErr.Type.String()})
		default:
			writeValidation(w, r, "malformed JSON body", nil)
		}
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			s.writeAppError(w, r, err)
			return false
		}
		details := map[string]any{}
		for _, fe := range verrs {
			details[fe.Field()] = describeFieldError(fe)
		}
		writeValidation(w, r, "invalid request body", details)
		return false
	}
	return true
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "latitude":
		return "must be a number between -90 and 90"
	case "longitude":
		return "must be a number between -180 and 180"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// pageRequest binds page and page_size. A malformed or non-positive page is not servable;
// a malformed page_size falls back to the default.
func pageRequest(q url.Values) (paging.Request, bool) {
	var req paging.Request
	if q.Has("page") {
		if err := runtime.BindQueryParameter("form", true, false, "page", q, &req.Page); err != nil || req.Page < 1 {
			return paging.Request{}, false
		}
	}
	var size int
	if err := runtime.BindQueryParameter("form", true, false, "page_size", q, &size); err == nil {
		req.PageSize = size
	}
	return req, true
}

// referencePoint parses latitude/longitude. Missing or unusable values yield nil, which means
// "distance unavailable" and never an error.
func referencePoint(q url.Values) *domain.Coordinate {
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		return nil
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return nil
	}
	return &domain.Coordinate{Latitude: lat, Longitude: lon}
}

type pageJSON[T any] struct {
	Count    int                       `json:"count"`
	Next     nullable.Nullable[string] `json:"next"`
	Previous nullable.Nullable[string] `json:"previous"`
	Results  []T                       `json:"results"`
}

func toPageJSON[S, T any](r *http.Request, p paging.Page[S], conv func(S) T) pageJSON[T] {
	out := pageJSON[T]{
		Count:    p.Count,
		Next:     nullable.NewNullNullable[string](),
		Previous: nullable.NewNullNullable[string](),
		Results:  make([]T, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		out.Results = append(out.Results, conv(it))
	}
	if p.HasNext() {
		out.Next = nullable.NewNullableWithValue(pageURL(r, p.Page+1))
	}
	if p.HasPrevious() {
		out.Previous = nullable.NewNullableWithValue(pageURL(r, p.Page-1))
	}
	return out
}

// pageURL rewrites the request URL to point at page n. The first page link omits the parameter.
func pageURL(r *http.Request, n int) string {
	q := r.URL.Query()
	if n <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func pageNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "PAGE_NOT_FOUND", "invalid page", nil)
}
