package protocol

import (
	"errors"
	"net/http"

	"paddlers.io/internal/sim/failure"
)

// NewResponse answers a request with the outcome of a command. A rejected
// command may still carry a result, e.g. the id of a rejected attack.
func NewResponse(requestID string, res Result, err error) Response {
	resp := Response{Type: TypeResult, RequestID: requestID, OK: err == nil}
	if err == nil {
		resp.Result = &res
		return resp
	}
	resp.Code = ErrorCode(err)
	if resp.Code == ErrInternal {
		resp.Message = "internal error"
	} else {
		resp.Message = err.Error()
	}
	if res.AttackID != 0 || res.PlayerID != 0 || res.VillageID != 0 {
		resp.Result = &res
	}
	return resp
}

// ErrorCode maps err to a wire code. Decoder rejections keep their code,
// classified failures carry one, anything else is E_INTERNAL.
func ErrorCode(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Code
	}
	code := failure.CodeOf(err)
	if !IsKnownCode(code) {
		return ErrInternal
	}
	return code
}

// HTTPStatus is the status an HTTP route answers with for code.
func HTTPStatus(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case ErrProtoBadRequest, ErrBadRequest:
		return http.StatusBadRequest
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrCapacity:
		return http.StatusConflict
	case ErrNoResource:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
