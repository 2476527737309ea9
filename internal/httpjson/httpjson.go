package httpjson

import (
	"encoding/json"
	"net/http"
)

// JsonResponse is the envelope every endpoint answers with.
type JsonResponse struct {
	Status  string `json:"status"` // "success" or "error"
	Data    any    `json:"data,omitempty"`
	ErrCode string `json:"code,omitempty"`
	ErrMsg  string `json:"message,omitempty"`
}

// JsonResponseRaw is the client-side view of the envelope, with Data left
// undecoded for the caller.
type JsonResponseRaw struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	ErrCode string          `json:"code"`
	ErrMsg  string          `json:"message"`
}

func WriteSuccessJson(w http.ResponseWriter, data any) {
	resp := JsonResponse{
		Status: "success",
		Data:   data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func WriteErrorJson(w http.ResponseWriter, errMsg string, statusCode int, errCode string) {
	resp := JsonResponse{
		Status:  "error",
		ErrMsg:  errMsg,
		ErrCode: errCode,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
