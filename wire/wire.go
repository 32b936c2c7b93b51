// Copyright 2026 The UStore Authors.
//
// Package wire defines the message shapes that cross the request/response
// transport boundary named in spec §6: a single Frame carrying a message
// type, a source tag, and the request/value/response payloads. The
// network listener/dialer that would move Frames between processes is
// explicitly out of scope (spec §1) — this package only defines the
// shape and its encode/decode.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/ustoreerr"
)

// MessageType identifies the requested operation (spec §6's minimum set).
type MessageType uint16

const (
	MessageUnknown MessageType = iota
	MessagePut
	MessageGet
	MessageGetChunk
	MessageGetInfo
	MessageBranch
	MessageRename
	MessageMerge
	MessageList
	MessageExists
	MessageGetBranchHead
	MessageIsBranchHead
	MessageGetLatestVersion
	MessageIsLatestVersion
	MessageDelete
)

// Status mirrors package ustoreerr's taxonomy on the wire (spec §7: "the
// transport maps ErrorCode to a status field in the response frame").
type Status uint16

// StatusOf converts an ustoreerr.Code to its wire Status representation.
func StatusOf(c ustoreerr.Code) Status { return Status(c) }

// Code recovers the ustoreerr.Code a Status was built from.
func (s Status) Code() ustoreerr.Code { return ustoreerr.Code(s) }

// RequestPayload carries the key/branch/version addressing for a request.
type RequestPayload struct {
	Key     string
	Branch  string
	Version hash.Hash
}

// ValuePayload carries the composite-type edit arguments (spec §6:
// "value_payload{type, base?, pos, dels, values[], keys[]}").
type ValuePayload struct {
	Type   byte // a ucell.UType value, carried as a plain byte
	Base   hash.Hash
	Pos    uint64
	Dels   uint64
	Values [][]byte
	Keys   [][]byte
}

// ResponsePayload carries the result of a request (spec §6:
// "response_payload{status, version?, value?, chunk?, list[]?}").
type ResponsePayload struct {
	Status  Status
	Version hash.Hash
	Value   []byte
	Chunk   []byte
	List    [][]byte
}

// Frame is one wire message: type, source tag, request id, and the three
// payload sections.
type Frame struct {
	Type      MessageType
	Source    uint32
	RequestID uuid.UUID
	Request   RequestPayload
	Value     ValuePayload
	Response  ResponsePayload
}

// NewRequest builds a Frame for an outgoing request, minting a fresh
// RequestID.
func NewRequest(typ MessageType, source uint32, req RequestPayload, val ValuePayload) Frame {
	return Frame{Type: typ, Source: source, RequestID: uuid.New(), Request: req, Value: val}
}

// Encode renders f as a length-prefixed byte frame.
//
// [type:2][source:4][request_id:16]
// [key_len:4][key][branch_len:4][branch][version:20]
// [value_type:1][base:20][pos:8][dels:8]
// [values_count:4]{[len:4][bytes]}... [keys_count:4]{[len:4][bytes]}...
// [status:2][resp_version:20]
// [resp_value_len:4][resp_value][resp_chunk_len:4][resp_chunk]
// [resp_list_count:4]{[len:4][bytes]}...
func Encode(f Frame) []byte {
	var buf []byte
	buf = appendUint16(buf, uint16(f.Type))
	buf = appendUint32(buf, f.Source)
	idBytes, _ := f.RequestID.MarshalBinary()
	buf = append(buf, idBytes...)

	buf = appendString(buf, f.Request.Key)
	buf = appendString(buf, f.Request.Branch)
	buf = append(buf, f.Request.Version[:]...)

	buf = append(buf, f.Value.Type)
	buf = append(buf, f.Value.Base[:]...)
	buf = appendUint64(buf, f.Value.Pos)
	buf = appendUint64(buf, f.Value.Dels)
	buf = appendBytesList(buf, f.Value.Values)
	buf = appendBytesList(buf, f.Value.Keys)

	buf = appendUint16(buf, uint16(f.Response.Status))
	buf = append(buf, f.Response.Version[:]...)
	buf = appendBytes(buf, f.Response.Value)
	buf = appendBytes(buf, f.Response.Chunk)
	buf = appendBytesList(buf, f.Response.List)
	return buf
}

// Decode parses a Frame previously produced by Encode.
func Decode(b []byte) (Frame, error) {
	var f Frame
	var err error

	typ, b, err := readUint16(b)
	if err != nil {
		return f, err
	}
	f.Type = MessageType(typ)

	f.Source, b, err = readUint32(b)
	if err != nil {
		return f, err
	}
	if len(b) < 16 {
		return f, fmt.Errorf("wire: truncated request id")
	}
	if err := f.RequestID.UnmarshalBinary(b[:16]); err != nil {
		return f, fmt.Errorf("wire: bad request id: %w", err)
	}
	b = b[16:]

	f.Request.Key, b, err = readString(b)
	if err != nil {
		return f, err
	}
	f.Request.Branch, b, err = readString(b)
	if err != nil {
		return f, err
	}
	f.Request.Version, b, err = readHash(b)
	if err != nil {
		return f, err
	}

	if len(b) < 1 {
		return f, fmt.Errorf("wire: truncated value type")
	}
	f.Value.Type = b[0]
	b = b[1:]
	f.Value.Base, b, err = readHash(b)
	if err != nil {
		return f, err
	}
	f.Value.Pos, b, err = readUint64(b)
	if err != nil {
		return f, err
	}
	f.Value.Dels, b, err = readUint64(b)
	if err != nil {
		return f, err
	}
	f.Value.Values, b, err = readBytesList(b)
	if err != nil {
		return f, err
	}
	f.Value.Keys, b, err = readBytesList(b)
	if err != nil {
		return f, err
	}

	status, b, err := readUint16(b)
	if err != nil {
		return f, err
	}
	f.Response.Status = Status(status)
	f.Response.Version, b, err = readHash(b)
	if err != nil {
		return f, err
	}
	f.Response.Value, b, err = readBytes(b)
	if err != nil {
		return f, err
	}
	f.Response.Chunk, b, err = readBytes(b)
	if err != nil {
		return f, err
	}
	f.Response.List, _, err = readBytesList(b)
	if err != nil {
		return f, err
	}
	return f, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

func appendString(buf []byte, s string) []byte { return appendBytes(buf, []byte(s)) }

func appendBytesList(buf []byte, list [][]byte) []byte {
	buf = appendUint32(buf, uint32(len(list)))
	for _, v := range list {
		buf = appendBytes(buf, v)
	}
	return buf
}

func readUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, fmt.Errorf("wire: truncated uint16")
	}
	return binary.LittleEndian.Uint16(b[:2]), b[2:], nil
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("wire: truncated uint32")
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("wire: truncated uint64")
	}
	return binary.LittleEndian.Uint64(b[:8]), b[8:], nil
}

func readHash(b []byte) (hash.Hash, []byte, error) {
	if len(b) < hash.ByteLen {
		return hash.Hash{}, nil, fmt.Errorf("wire: truncated hash")
	}
	var h hash.Hash
	copy(h[:], b[:hash.ByteLen])
	return h, b[hash.ByteLen:], nil
}

func readBytes(b []byte) ([]byte, []byte, error) {
	n, b, err := readUint32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("wire: truncated byte field")
	}
	if n == 0 {
		return nil, b, nil
	}
	return append([]byte(nil), b[:n]...), b[n:], nil
}

func readString(b []byte) (string, []byte, error) {
	v, rest, err := readBytes(b)
	return string(v), rest, err
}

func readBytesList(b []byte) ([][]byte, []byte, error) {
	n, b, err := readUint32(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		var v []byte
		v, b, err = readBytes(b)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, v)
	}
	return out, b, nil
}
