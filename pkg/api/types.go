package api

// RecordResponse is returned after counting one request against an API
type RecordResponse struct {
	API       string `json:"api"`
	Remaining int    `json:"remaining"`
}

// ScoreRequest asks the priority scorer to rate a flight.
// Remaining defaults to the tracker's remaining quota for the configured API.
type ScoreRequest struct {
	Callsign     string `json:"callsign"`
	ICAOHex      string `json:"icao_hex"`
	Registration string `json:"registration"`
	Remaining    *int   `json:"remaining,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}
