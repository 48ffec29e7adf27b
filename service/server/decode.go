package server

import (
	"encoding/json"
	"net/http"

	"pushbridge/service/util"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		util.JSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
