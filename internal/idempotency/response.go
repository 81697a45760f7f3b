package idempotency

// Header is one captured response header. Order is preserved on replay.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Response is the snapshot of an HTTP-shaped acknowledgment captured against
// an idempotency record and replayed verbatim on duplicate submissions.
type Response struct {
	Status  int      `json:"status"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body"`
}
