package httpapi

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/unilib/circulation-go/circulation"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	logMsgWriteResponseFailed = "failed to write http response"
	logMsgRequestRejected     = "request rejected"

	logAttrError  = "error"
	logAttrKind   = "kind"
	logAttrStatus = "status"
)

// kindBadRequest covers malformed request bodies and path parameters, which
// never reach the domain and therefore carry no domain error kind.
const kindBadRequest = "BadRequestError"

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusForKind maps domain error kinds to HTTP status codes.
func statusForKind(kind circulation.ErrorKind) int {
	switch kind {
	case circulation.KindValidation:
		return http.StatusUnprocessableEntity
	case circulation.KindNotFound:
		return http.StatusNotFound
	case circulation.KindConflict, circulation.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeData(w http.ResponseWriter, status int, data any) {
	a.writeJSON(w, status, dataEnvelope{Data: data})
}

// writeDomainError translates a domain error into the error envelope. The
// internal kind hides the error detail from clients; everything else passes
// the message through.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	kind := circulation.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	if kind == circulation.KindInternal {
		message = "internal error"
	}

	if a.logger != nil {
		a.logger.Info(logMsgRequestRejected, logAttrKind, string(kind), logAttrStatus, status)
	}

	a.writeJSON(w, status, errorEnvelope{Error: errorBody{Kind: string(kind), Message: message}})
}

func (a *API) writeBadRequest(w http.ResponseWriter, message string) {
	a.writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{Kind: kindBadRequest, Message: message}})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	if err := jsoniter.ConfigFastest.NewEncoder(w).Encode(body); err != nil && a.logger != nil {
		a.logger.Warn(logMsgWriteResponseFailed, logAttrError, err.Error())
	}
}
