package handler

import (
	"errors"
	"net/http"

	"github.com/graphvault/graphvault/internal/api/response"
	"github.com/graphvault/graphvault/internal/core"
)

// writeError maps service errors onto HTTP statuses: unknown IDs are 404,
// blocked operations 409, integrity failures 422, state preconditions 412,
// and unreachable targets 502. Anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound     *core.NotFoundError
		conflict     *core.ConflictError
		integrity    *core.IntegrityError
		precondition *core.PreconditionError
		unreachable  *core.UnreachableError
	)

	switch {
	case errors.As(err, &notFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &integrity):
		response.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &precondition):
		response.WriteError(w, http.StatusPreconditionFailed, err.Error())
	case errors.As(err, &unreachable):
		response.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
