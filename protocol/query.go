package protocol

// QueryType discriminates the four client requests.
type QueryType string

const (
	QueryRead     QueryType = "READ"
	QueryWrite    QueryType = "WRITE"
	QueryContinue QueryType = "CONTINUE"
	QueryStop     QueryType = "STOP"
)

// Query is the top-level client message.  Token correlates responses and
// stream continuations with the request that started them.
type Query struct {
	Type  QueryType   `json:"type"`
	Token int64       `json:"token"`
	Read  *ReadQuery  `json:"read,omitempty"`
	Write *WriteQuery `json:"write,omitempty"`
}

// ReadQuery evaluates a term and returns its value or stream.
type ReadQuery struct {
	Term *Term `json:"term"`
}

// WriteQueryKind discriminates the write variants.
type WriteQueryKind string

const (
	WriteInsert      WriteQueryKind = "INSERT"
	WriteUpdate      WriteQueryKind = "UPDATE"
	WriteDelete      WriteQueryKind = "DELETE"
	WriteMutate      WriteQueryKind = "MUTATE"
	WritePointUpdate WriteQueryKind = "POINTUPDATE"
	WritePointDelete WriteQueryKind = "POINTDELETE"
	WritePointMutate WriteQueryKind = "POINTMUTATE"
)

// WriteQuery dispatches on Kind to one of the write payloads.
type WriteQuery struct {
	Kind        WriteQueryKind `json:"kind"`
	Insert      *Insert        `json:"insert,omitempty"`
	Update      *Update        `json:"update,omitempty"`
	Delete      *Delete        `json:"delete,omitempty"`
	Mutate      *Mutate        `json:"mutate,omitempty"`
	PointUpdate *PointUpdate   `json:"point_update,omitempty"`
	PointDelete *PointDelete   `json:"point_delete,omitempty"`
	PointMutate *PointMutate   `json:"point_mutate,omitempty"`
}

// Insert adds documents to a table; keys missing the primary attribute are
// generated server side.
type Insert struct {
	TableRef TableRef `json:"table_ref"`
	Terms    []*Term  `json:"terms"`
}

// Update applies Mapping to every document of a view, merging the result
// into the original.
type Update struct {
	View    *Term   `json:"view"`
	Mapping Mapping `json:"mapping"`
}

// Delete removes every document of a view.
type Delete struct {
	View *Term `json:"view"`
}

// Mutate replaces every document of a view with Mapping's result; a null
// result deletes the document.
type Mutate struct {
	View    *Term   `json:"view"`
	Mapping Mapping `json:"mapping"`
}

// PointUpdate is Update addressed at a single primary key.
type PointUpdate struct {
	TableRef TableRef `json:"table_ref"`
	Attrname string   `json:"attrname"`
	Key      *Term    `json:"key"`
	Mapping  Mapping  `json:"mapping"`
}

// PointDelete is Delete addressed at a single primary key.
type PointDelete struct {
	TableRef TableRef `json:"table_ref"`
	Attrname string   `json:"attrname"`
	Key      *Term    `json:"key"`
}

// PointMutate is Mutate addressed at a single primary key.
type PointMutate struct {
	TableRef TableRef `json:"table_ref"`
	Attrname string   `json:"attrname"`
	Key      *Term    `json:"key"`
	Mapping  Mapping  `json:"mapping"`
}

// StatusCode classifies a Response.
type StatusCode string

const (
	StatusSuccessJSON       StatusCode = "SUCCESS_JSON"
	StatusSuccessStream     StatusCode = "SUCCESS_STREAM"
	StatusSuccessPartial    StatusCode = "SUCCESS_PARTIAL"
	StatusSuccessEmpty      StatusCode = "SUCCESS_EMPTY"
	StatusBrokenClientError StatusCode = "BROKEN_CLIENT_ERROR"
	StatusBadQuery          StatusCode = "BAD_QUERY"
	StatusRuntimeError      StatusCode = "RUNTIME_ERROR"
)

// Response is the reply to one Query.  Response carries JSON-encoded
// documents; Backtrace is present for bad-query and runtime errors only.
type Response struct {
	Token        int64      `json:"token"`
	StatusCode   StatusCode `json:"status_code"`
	Response     []string   `json:"response,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Backtrace    []string   `json:"backtrace,omitempty"`
}
