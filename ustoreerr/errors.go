// Package ustoreerr defines the error taxonomy shared by every UStore
// component. The worker and values packages return these errors
// (comparable with errors.Is) for the failures they detect; errors from
// lower layers such as chunk, tree, recovery and wire can be plain
// errors, which CodeOf reports as UnknownOp.
package ustoreerr

import "errors"

// Code identifies a taxonomy entry. Kept distinct from the error value
// itself so callers that cross a wire boundary can serialize it as a
// small integer (see package wire's Status).
type Code int

const (
	OK Code = iota
	UnknownOp
	UnknownCommand
	InvalidCommandArgument
	InvalidParameters
	InvalidRange
	InvalidValue
	BranchExists
	BranchNotExists
	KeyExists
	KeyNotExists
	UCellNotFound
	ChunkNotExists
	ReferringVersionNotExist
	InconsistentKey
	TypeUnsupported
	TypeMismatch
	IndexOutOfRange
	FailedCreateUCell
	FailedCreateSBlob
	FailedCreateSString
	FailedCreateSList
	FailedCreateSMap
	FailedModifySBlob
	FailedModifySList
	FailedModifySMap
	MergeConflict
	ReadFailed
	WriteFailed
	FailedOpenFile
	EmptyTable
	NotEmptyTable
	ColumnNotExists
	RowNotExists
)

var names = map[Code]string{
	OK:                       "OK",
	UnknownOp:                "UnknownOp",
	UnknownCommand:           "UnknownCommand",
	InvalidCommandArgument:   "InvalidCommandArgument",
	InvalidParameters:        "InvalidParameters",
	InvalidRange:             "InvalidRange",
	InvalidValue:             "InvalidValue",
	BranchExists:             "BranchExists",
	BranchNotExists:          "BranchNotExists",
	KeyExists:                "KeyExists",
	KeyNotExists:             "KeyNotExists",
	UCellNotFound:            "UCellNotFound",
	ChunkNotExists:           "ChunkNotExists",
	ReferringVersionNotExist: "ReferringVersionNotExist",
	InconsistentKey:          "InconsistentKey",
	TypeUnsupported:          "TypeUnsupported",
	TypeMismatch:             "TypeMismatch",
	IndexOutOfRange:          "IndexOutOfRange",
	FailedCreateUCell:        "FailedCreateUCell",
	FailedCreateSBlob:        "FailedCreateSBlob",
	FailedCreateSString:      "FailedCreateSString",
	FailedCreateSList:        "FailedCreateSList",
	FailedCreateSMap:         "FailedCreateSMap",
	FailedModifySBlob:        "FailedModifySBlob",
	FailedModifySList:        "FailedModifySList",
	FailedModifySMap:         "FailedModifySMap",
	MergeConflict:            "MergeConflict",
	ReadFailed:               "ReadFailed",
	WriteFailed:              "WriteFailed",
	FailedOpenFile:           "FailedOpenFile",
	EmptyTable:               "EmptyTable",
	NotEmptyTable:            "NotEmptyTable",
	ColumnNotExists:          "ColumnNotExists",
	RowNotExists:             "RowNotExists",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "UnknownCode"
}

// Error is a taxonomy error. Two Errors with the same Code compare equal
// under errors.Is regardless of Msg, so callers can do:
//
//	if errors.Is(err, ustoreerr.New(ustoreerr.KeyNotExists, "")) { ... }
//
// or, more idiomatically, compare against the package-level sentinels
// below with errors.Is.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// Is makes errors.Is(err, sentinel) match on Code alone.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == e.Code
}

// New constructs an Error for the given code with an optional detail
// message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap annotates an existing error with a taxonomy code, preserving the
// original error for unwrapping.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{code: code, err: err}
}

type wrapped struct {
	code Code
	err  error
}

func (w *wrapped) Error() string { return w.code.String() + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return te.Code == w.code
	}
	return errors.Is(w.err, target)
}

// CodeOf extracts the taxonomy Code from err, returning UnknownOp if err
// does not carry one.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var w *wrapped
	if errors.As(err, &w) {
		return w.code
	}
	return UnknownOp
}

// Sentinels for the most frequently compared codes, usable directly with
// errors.Is.
var (
	ErrBranchExists             = New(BranchExists, "")
	ErrBranchNotExists          = New(BranchNotExists, "")
	ErrKeyNotExists             = New(KeyNotExists, "")
	ErrUCellNotFound            = New(UCellNotFound, "")
	ErrChunkNotExists           = New(ChunkNotExists, "")
	ErrReferringVersionNotExist = New(ReferringVersionNotExist, "")
	ErrMergeConflict            = New(MergeConflict, "")
	ErrIndexOutOfRange          = New(IndexOutOfRange, "")
	ErrTypeMismatch             = New(TypeMismatch, "")
	ErrInvalidValue             = New(InvalidValue, "")
	ErrInconsistentKey          = New(InconsistentKey, "")
)
