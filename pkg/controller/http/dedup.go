package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/usecase"
	"github.com/opsward/geryon/pkg/utils/errutil"
	"github.com/opsward/geryon/pkg/utils/safe"
)

// dedupResponse is the wire shape of a dedup verdict. Exactly one of
// IssueID / ChainedTo is set depending on the status.
type dedupResponse struct {
	Status    string `json:"status"`
	IssueID   string `json:"issue_id,omitempty"`
	ChainedTo string `json:"chained_to_issue_id,omitempty"`
}

// dedupHandler accepts one validated report and returns the dedup verdict:
// 201 CREATED with the new issue's ID, or 200 DUPLICATE with the issue the
// report was chained to.
func dedupHandler(uc *usecase.DedupUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer safe.Close(ctx, r.Body)

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to decode report"), http.StatusBadRequest)
			return
		}

		report := reportFromPayload(payload)

		result, err := uc.Submit(ctx, report)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err, statusCodeFor(err))
			return
		}

		writeResult(ctx, w, result)
	}
}

// reportFromPayload lifts category and summary out of the request body and
// keeps every other field verbatim as pass-through attributes.
func reportFromPayload(payload map[string]any) *model.Report {
	report := &model.Report{}

	if category, ok := payload["category"].(string); ok {
		report.Category = types.CategoryID(category)
	}
	if summary, ok := payload["summary"].(string); ok {
		report.Summary = summary
	}

	attrs := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "category" || k == "summary" {
			continue
		}
		attrs[k] = v
	}
	if len(attrs) > 0 {
		report.Attributes = attrs
	}

	return report
}

// statusCodeFor maps the use case error taxonomy onto HTTP status codes
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidReport),
		errors.Is(err, usecase.ErrUnknownCategory),
		errors.Is(err, model.ErrEmptyVector),
		errors.Is(err, model.ErrDimensionMismatch),
		errors.Is(err, model.ErrZeroVector):
		return http.StatusBadRequest

	case errors.Is(err, usecase.ErrIssueVanished):
		return http.StatusConflict

	case errors.Is(err, usecase.ErrEmbedderUnavailable),
		errors.Is(err, usecase.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

func writeResult(ctx context.Context, w http.ResponseWriter, result *model.DedupResult) {
	var resp dedupResponse
	var code int

	switch result.Status {
	case model.DedupStatusCreated:
		code = http.StatusCreated
		resp = dedupResponse{
			Status:  string(result.Status),
			IssueID: result.IssueID.String(),
		}
	default:
		code = http.StatusOK
		resp = dedupResponse{
			Status:    string(result.Status),
			ChainedTo: result.IssueID.String(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	body, err := json.Marshal(resp)
	if err != nil {
		errutil.Handle(ctx, err, "failed to marshal dedup response")
		return
	}
	safe.Write(ctx, w, body)
}
