package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/marketchart/internal/domain"
	"github.com/alanyoungcy/marketchart/internal/service"
	"github.com/alanyoungcy/marketchart/internal/timerange"
)

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps service errors onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBoundsUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts pagination parameters. Defaults: limit=50 (max
// 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathParam extracts a named path parameter set by the 1.22 ServeMux.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseRangeQuery reads period, view_start, view_end, value_min and
// value_max. Any malformed value is an error naming the parameter.
func parseRangeQuery(r *http.Request) (service.RangeQuery, error) {
	q := r.URL.Query()
	var out service.RangeQuery

	if v := q.Get("period"); v != "" {
		p, err := timerange.ParsePeriod(v)
		if err != nil {
			return out, err
		}
		out.Period = &p
	}

	var err error
	if out.View.Start, err = optInt64(q.Get("view_start"), "view_start"); err != nil {
		return out, err
	}
	if out.View.End, err = optInt64(q.Get("view_end"), "view_end"); err != nil {
		return out, err
	}
	if out.Values.Min, err = optFloat(q.Get("value_min"), "value_min"); err != nil {
		return out, err
	}
	if out.Values.Max, err = optFloat(q.Get("value_max"), "value_max"); err != nil {
		return out, err
	}
	return out, nil
}

func optInt64(s, name string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, s)
	}
	return &v, nil
}

func optFloat(s, name string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, s)
	}
	return &v, nil
}
