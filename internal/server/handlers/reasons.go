package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/batchlog/internal/errors"
	"github.com/3leaps/batchlog/pkg/reason"
)

// ListBands serves GET /reasons/bands.
func ListBands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reason.Bands())
}

// GetReason serves GET /reasons/{kind}/{code}. The optional "subreasons"
// query parameter is a mask resolved against the reason.
func GetReason(w http.ResponseWriter, r *http.Request) {
	kind := reason.Kind(chi.URLParam(r, "kind"))
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest("reason code must be an integer", err))
		return
	}
	var mask int64
	if s := r.URL.Query().Get("subreasons"); s != "" {
		mask, err = strconv.ParseInt(s, 0, 64)
		if err != nil {
			respondWithError(w, r, apperrors.NewBadRequest("subreasons must be an integer mask", err))
			return
		}
	}

	switch kind {
	case reason.Pending, reason.Suspending:
	case "exit":
		e := reason.ExitReason(code)
		if !e.Known() {
			respondWithError(w, r, apperrors.NewNotFound("unknown exit reason "+strconv.Itoa(code)))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": code, "name": e.String(), "text": e.Text()})
		return
	case "term":
		t, err := reason.LookupTerm(code)
		if err != nil {
			respondWithError(w, r, apperrors.NewNotFound(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	default:
		respondWithError(w, r, apperrors.NewBadRequest("unknown reason kind "+string(kind), reason.ErrUnknownReason))
		return
	}

	if kind == reason.Suspending {
		flags, unknown := reason.SuspendFlags(code)
		if len(flags) == 0 {
			respondWithError(w, r, apperrors.NewNotFound("unknown suspending reason "+strconv.Itoa(code)))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"flags": flags, "unknown": unknown})
		return
	}

	d, err := reason.Lookup(kind, code)
	if err != nil {
		respondWithError(w, r, apperrors.NewNotFound(err.Error()))
		return
	}
	subs, unknown := reason.ResolveSubreasons(d, uint32(mask))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reason":     ReasonView{Descriptor: d, Subreasons: subs},
		"unresolved": unknown,
	})
}
