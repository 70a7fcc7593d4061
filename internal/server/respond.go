package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps connect codes onto the HTTP error taxonomy.
func httpStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeFailedPrecondition, connect.CodeOutOfRange:
		return http.StatusBadRequest
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeAlreadyExists, connect.CodeAborted:
		return http.StatusConflict
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable
	case connect.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case connect.CodeUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error":{"code","message"}}. Errors that are
// not connect errors are logged and reported as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Unhandled error")
		cerr = connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	status := httpStatus(cerr.Code())
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: cerr.Code().String(), Message: cerr.Message()}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// writeVersioned writes a single document with its version as ETag,
// answering 304 when the client already holds that version.
func writeVersioned(w http.ResponseWriter, r *http.Request, version int64, v any) {
	tag := etag(version)
	w.Header().Set("ETag", tag)
	if match := r.Header.Get("If-None-Match"); match != "" {
		for candidate := range strings.SplitSeq(match, ",") {
			candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
			if candidate == tag || candidate == "*" {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, v)
}

// ifMatch returns the version asserted by an If-Match header, 0 when absent.
func ifMatch(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid If-Match header %q", r.Header.Get("If-Match")))
	}
	return v, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("request body is required"))
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		}
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s %q", name, r.PathValue(name)))
	}
	return id, nil
}

func queryUUID(q url.Values, name string) (*uuid.UUID, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s %q", name, raw))
	}
	return &id, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s %q", name, raw))
	}
	return n, nil
}

func queryFloat(q url.Values, name string) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s %q", name, raw))
	}
	return f, nil
}

// queryList accepts both repeated parameters and comma separated values.
func queryList(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func pageFromQuery(q url.Values) (store.Page, error) {
	limit, err := queryInt(q, "limit")
	if err != nil {
		return store.Page{}, err
	}
	offset, err := queryInt(q, "offset")
	if err != nil {
		return store.Page{}, err
	}
	return store.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

// listResponse wraps collections so paging metadata can be added without
// breaking clients.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T any](items []T, page store.Page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Limit: page.Limit, Offset: page.Offset}
}
