package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/dbcextract/api/apitablev1"
	"github.com/fulldump/dbcextract/database"
	"github.com/fulldump/dbcextract/service"
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.MarshalWrite(w, p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status == database.StatusOpening {
				box.SetError(ctx, fmt.Errorf("%w: opening", ErrUnavailable))
				return
			}
			if status == database.StatusClosing {
				box.SetError(ctx, fmt.Errorf("%w: closing", ErrUnavailable))
				return
			}
			next(ctx)
		}
	}
}

var ErrUnavailable = errors.New("temporary unavailable")

func writeError(w http.ResponseWriter, status int, err error, description string) {
	w.WriteHeader(status)
	PrettyError{
		Message:     err.Error(),
		Description: description,
	}.MarshalTo(w)
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)
		r := box.GetRequest(ctx)

		var syntacticError *jsontext.SyntacticError
		var semanticError *json.SemanticError

		switch {
		case errors.Is(err, ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, err, "user is not authenticated")

		case errors.Is(err, ErrUnavailable), errors.Is(err, database.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, err, "tables are not loaded, try again later")

		case errors.Is(err, box.ErrResourceNotFound):
			writeError(w, http.StatusNotFound, err, fmt.Sprintf("resource '%s' not found", r.URL.String()))

		case errors.Is(err, box.ErrMethodNotAllowed):
			writeError(w, http.StatusMethodNotAllowed, err, fmt.Sprintf("method '%s' not allowed", r.Method))

		case errors.Is(err, service.ErrorTableNotFound):
			writeError(w, http.StatusNotFound, err, fmt.Sprintf("table '%s' does not exist", box.GetUrlParameter(ctx, "tableName")))

		case errors.Is(err, service.ErrorRecordNotFound):
			writeError(w, http.StatusNotFound, err, fmt.Sprintf("record '%s' does not exist", box.GetUrlParameter(ctx, "recordId")))

		case errors.Is(err, service.ErrorHotfixUnavailable):
			writeError(w, http.StatusConflict, err, "no hotfix cache is configured")

		case errors.Is(err, apitablev1.ErrBadRecordID):
			writeError(w, http.StatusBadRequest, err, "Malformed record id")

		case errors.As(err, &syntacticError), errors.Is(err, io.ErrUnexpectedEOF):
			writeError(w, http.StatusBadRequest, err, "Malformed JSON")

		case errors.As(err, &semanticError):
			writeError(w, http.StatusBadRequest, err, "Unexpected JSON value")

		default:
			writeError(w, http.StatusInternalServerError, err, "Unexpected error")
		}
	}
}
