// Package protocol declares the wire schema for queries, terms, builtins, and
// responses.  Messages arrive from client drivers; Validate distinguishes a
// structurally broken message (the driver's fault) from a well-formed query
// that may still fail typechecking (the user's fault).
package protocol

// TermKind discriminates the expression node variants.
type TermKind string

const (
	TermJSONNull    TermKind = "JSON_NULL"
	TermBool        TermKind = "BOOL"
	TermNumber      TermKind = "NUMBER"
	TermString      TermKind = "STRING"
	TermArray       TermKind = "ARRAY"
	TermObject      TermKind = "OBJECT"
	TermVar         TermKind = "VAR"
	TermLet         TermKind = "LET"
	TermIf          TermKind = "IF"
	TermCall        TermKind = "CALL"
	TermError       TermKind = "ERROR"
	TermGetByKey    TermKind = "GETBYKEY"
	TermTable       TermKind = "TABLE"
	TermJavaScript  TermKind = "JAVASCRIPT"
	TermImplicitVar TermKind = "IMPLICIT_VAR"
)

// Term is one node of the query expression tree.  Kind dictates which payload
// field is read; Validate rejects a term whose required payload is missing
// but does not reject payload fields set beyond it.
type Term struct {
	Kind       TermKind      `json:"kind"`
	Bool       *bool         `json:"bool,omitempty"`
	Number     *float64      `json:"number,omitempty"`
	Str        *string       `json:"string,omitempty"`
	Array      []*Term       `json:"array,omitempty"`
	Object     []VarTermPair `json:"object,omitempty"`
	Var        *string       `json:"var,omitempty"`
	Let        *Let          `json:"let,omitempty"`
	If         *If           `json:"if,omitempty"`
	Call       *Call         `json:"call,omitempty"`
	Error      *string       `json:"error,omitempty"`
	GetByKey   *GetByKey     `json:"get_by_key,omitempty"`
	Table      *Table        `json:"table,omitempty"`
	JavaScript *string       `json:"javascript,omitempty"`
}

// VarTermPair is a name/term pair used for object fields and let bindings.
type VarTermPair struct {
	Var  string `json:"var"`
	Term *Term  `json:"term"`
}

// Let binds a sequence of names; later bindings see earlier ones.
type Let struct {
	Binds []VarTermPair `json:"binds"`
	Expr  *Term         `json:"expr"`
}

// If evaluates Test as a boolean and selects a branch.
type If struct {
	Test        *Term `json:"test"`
	TrueBranch  *Term `json:"true_branch"`
	FalseBranch *Term `json:"false_branch"`
}

// Call applies a builtin to argument terms.
type Call struct {
	Builtin *Builtin `json:"builtin"`
	Args    []*Term  `json:"args"`
}

// GetByKey fetches one document from a table by its primary key attribute.
type GetByKey struct {
	TableRef TableRef `json:"table_ref"`
	Attrname string   `json:"attrname"`
	Key      *Term    `json:"key"`
}

// Table references a whole table as a view.
type Table struct {
	TableRef TableRef `json:"table_ref"`
}

// TableRef names a table within a database.
type TableRef struct {
	DBName    string `json:"db_name"`
	TableName string `json:"table_name"`
}
