// Copyright 2026 The UStore Authors.
//
// Package recovery implements the append-only framed recovery log that
// durably records every head-version index mutation (spec §4.12/C15).
// The UCell chunks themselves are not logged — they are already durable
// in the ChunkStore — only branch_head/latest index mutations are.
package recovery

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/ustoredb/ustore/hash"
)

// CmdID identifies which index mutation a record replays (spec §4.12).
type CmdID byte

const (
	// CmdUpdate replays a branch-head transition (PutBranch).
	CmdUpdate CmdID = iota + 1
	CmdRename
	CmdRemove
	// CmdLatest replays a latest-set transition (PutLatest): Pre1/Pre2 are
	// the superseded tips (Pre2 is hash.Null unless this was a merge) and
	// Ver is the new tip. Without this, the latest-set half of the
	// head-version index (spec §3/§4.8) cannot survive a restart.
	CmdLatest
)

const magic uint32 = 0x55535452 // "USTR"

// DefaultFlushTimeout and DefaultBufferSize are the buffered-mode
// defaults named in spec §4.12 ("flush on a timeout (default 5s) or when
// the buffer (default 4 MiB) fills").
const (
	DefaultFlushTimeout = 5 * time.Second
	DefaultBufferSize   = 4 * 1024 * 1024
)

// FlushPolicy selects between buffered and strong-sync write durability
// (spec §4.12's two named modes).
type FlushPolicy struct {
	// StrongSync, when true, flushes and fsyncs after every record. When
	// false (buffered mode), records accumulate in memory and are flushed
	// by the Append that brings the buffer to BufferSize or that finds
	// Timeout elapsed since the last flush; no timer flushes on its own,
	// so the last records stay buffered until the next Append or Close.
	StrongSync bool
	Timeout    time.Duration
	BufferSize int
}

// Buffered is the default buffered FlushPolicy (spec §4.12 defaults).
func Buffered() FlushPolicy {
	return FlushPolicy{StrongSync: false, Timeout: DefaultFlushTimeout, BufferSize: DefaultBufferSize}
}

// StrongSync is the always-flush FlushPolicy.
func StrongSync() FlushPolicy {
	return FlushPolicy{StrongSync: true}
}

// Record is one replayable head-version index mutation.
type Record struct {
	SeqID  uint64
	Cmd    CmdID
	Key    string
	Branch string // old branch for CmdRename, target branch otherwise
	NewKey string // new branch for CmdRename, unused otherwise
	Ver    hash.Hash
	Pre1   hash.Hash // CmdLatest only: first superseded tip
	Pre2   hash.Hash // CmdLatest only: second superseded tip, hash.Null unless a merge
}

// Cursor marks a position in the recovery log (spec §4.12: "A cursor
// (file_id, log_id, offset) marks the write point").
type Cursor struct {
	FileID uint64
	LogID  uint64
	Offset int64
}

// Log is an append-only, framed recovery log file.
type Log struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	policy FlushPolicy
	seq    uint64
	offset int64

	lastFlush     time.Time
	bufferedBytes int
}

// Open opens (creating if absent) the log file at path and positions the
// writer at the end, ready to append. It does not replay; call Replay
// separately before Open if recovering index state at startup.
func Open(path string, policy FlushPolicy) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	off, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Log{f: f, w: bufio.NewWriterSize(f, 64*1024), policy: policy, offset: off, lastFlush: time.Now()}, nil
}

// Close flushes any buffered bytes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Append writes r as a new framed record, applying the Log's FlushPolicy.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	r.SeqID = l.seq

	payload := encodePayload(r)
	compressed := snappy.Encode(nil, payload)

	frame := encodeFrame(r.SeqID, byte(r.Cmd), payload, compressed)
	if _, err := l.w.Write(frame); err != nil {
		return err
	}
	l.offset += int64(len(frame))
	l.bufferedBytes += len(frame)

	if l.policy.StrongSync {
		return l.flushLocked()
	}
	if l.bufferedBytes >= l.policy.BufferSize || time.Since(l.lastFlush) >= l.policy.Timeout {
		return l.flushLocked()
	}
	return nil
}

func (l *Log) flushLocked() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	if err := l.f.Sync(); err != nil {
		return err
	}
	l.lastFlush = time.Now()
	l.bufferedBytes = 0
	return nil
}

// Flush forces any buffered records to disk regardless of policy.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Cursor returns the current write position.
func (l *Log) Cursor() Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Cursor{Offset: l.offset}
}

// --- framing ---
//
// [magic:4][header_len:4][version:1][header_checksum:4]
// [payload_len:4][payload_compressed_len:4][payload_checksum:4]
// [seq_id:8][cmd_id:1][payload...]

const recordVersion = 1
const headerFixedLen = 4 + 4 + 1 + 4 + 4 + 4 + 4 + 8 + 1

func encodeFrame(seqID uint64, cmd byte, payload, compressed []byte) []byte {
	buf := make([]byte, headerFixedLen+len(compressed))
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], headerFixedLen)
	buf[8] = recordVersion
	// header_checksum covers everything except itself: compute after.
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(buf[21:25], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint64(buf[25:33], seqID)
	buf[33] = cmd
	copy(buf[headerFixedLen:], compressed)

	headerChecksum := crc32.ChecksumIEEE(append(append([]byte(nil), buf[0:9]...), buf[13:headerFixedLen]...))
	binary.LittleEndian.PutUint32(buf[9:13], headerChecksum)
	return buf
}

type decodedFrame struct {
	seqID   uint64
	cmd     byte
	payload []byte
	size    int // total bytes consumed
}

// decodeFrame parses one frame from the head of b, returning an error if
// the magic or either checksum is wrong (the caller treats that as "end
// of valid log", per spec §4.12's "partial tail is discarded").
func decodeFrame(b []byte) (decodedFrame, error) {
	if len(b) < headerFixedLen {
		return decodedFrame{}, fmt.Errorf("recovery: truncated header")
	}
	if binary.LittleEndian.Uint32(b[0:4]) != magic {
		return decodedFrame{}, fmt.Errorf("recovery: bad magic")
	}
	headerLen := binary.LittleEndian.Uint32(b[4:8])
	if headerLen != headerFixedLen {
		return decodedFrame{}, fmt.Errorf("recovery: unexpected header length %d", headerLen)
	}
	wantHeaderChecksum := binary.LittleEndian.Uint32(b[9:13])
	gotHeaderChecksum := crc32.ChecksumIEEE(append(append([]byte(nil), b[0:9]...), b[13:headerFixedLen]...))
	if wantHeaderChecksum != gotHeaderChecksum {
		return decodedFrame{}, fmt.Errorf("recovery: header checksum mismatch")
	}
	payloadLen := binary.LittleEndian.Uint32(b[13:17])
	compressedLen := binary.LittleEndian.Uint32(b[17:21])
	payloadChecksum := binary.LittleEndian.Uint32(b[21:25])
	seqID := binary.LittleEndian.Uint64(b[25:33])
	cmd := b[33]

	total := headerFixedLen + int(compressedLen)
	if len(b) < total {
		return decodedFrame{}, fmt.Errorf("recovery: truncated payload")
	}
	compressed := b[headerFixedLen:total]
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return decodedFrame{}, fmt.Errorf("recovery: snappy decode: %w", err)
	}
	if uint32(len(payload)) != payloadLen {
		return decodedFrame{}, fmt.Errorf("recovery: payload length mismatch")
	}
	if crc32.ChecksumIEEE(payload) != payloadChecksum {
		return decodedFrame{}, fmt.Errorf("recovery: payload checksum mismatch")
	}
	return decodedFrame{seqID: seqID, cmd: cmd, payload: payload, size: total}, nil
}

// --- payload encoding: ---
// [keyLen16][key][branchLen16][branch][newKeyLen16][newKey]
// [ver:20][pre1:20][pre2:20]

func encodePayload(r Record) []byte {
	buf := make([]byte, 0, 2+len(r.Key)+2+len(r.Branch)+2+len(r.NewKey)+hash.ByteLen*3)
	buf = appendLenPrefixed(buf, []byte(r.Key))
	buf = appendLenPrefixed(buf, []byte(r.Branch))
	buf = appendLenPrefixed(buf, []byte(r.NewKey))
	buf = append(buf, r.Ver[:]...)
	buf = append(buf, r.Pre1[:]...)
	buf = append(buf, r.Pre2[:]...)
	return buf
}

func appendLenPrefixed(buf, s []byte) []byte {
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
	buf = append(buf, lb[:]...)
	buf = append(buf, s...)
	return buf
}

func decodePayload(cmd CmdID, b []byte) (Record, error) {
	key, b, err := readLenPrefixed(b)
	if err != nil {
		return Record{}, err
	}
	branch, b, err := readLenPrefixed(b)
	if err != nil {
		return Record{}, err
	}
	newKey, b, err := readLenPrefixed(b)
	if err != nil {
		return Record{}, err
	}
	if len(b) < hash.ByteLen*3 {
		return Record{}, fmt.Errorf("recovery: truncated version")
	}
	var ver, pre1, pre2 hash.Hash
	copy(ver[:], b[:hash.ByteLen])
	b = b[hash.ByteLen:]
	copy(pre1[:], b[:hash.ByteLen])
	b = b[hash.ByteLen:]
	copy(pre2[:], b[:hash.ByteLen])
	return Record{
		Cmd: cmd, Key: string(key), Branch: string(branch), NewKey: string(newKey),
		Ver: ver, Pre1: pre1, Pre2: pre2,
	}, nil
}

func readLenPrefixed(b []byte) (value, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("recovery: truncated length prefix")
	}
	l := binary.LittleEndian.Uint16(b[0:2])
	b = b[2:]
	if len(b) < int(l) {
		return nil, nil, fmt.Errorf("recovery: truncated length-prefixed field")
	}
	return b[:l], b[l:], nil
}

// Replay scans path in order from the beginning, verifying each record's
// checksums and calling apply for every valid one in sequence order. The
// first record that fails magic or checksum verification terminates the
// scan — everything after it (a partial trailing write) is discarded,
// per spec §4.12.
func Replay(path string, apply func(Record) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	off := 0
	for off < len(data) {
		df, err := decodeFrame(data[off:])
		if err != nil {
			break // partial/corrupt tail: stop here, discard the rest
		}
		r, err := decodePayload(CmdID(df.cmd), df.payload)
		if err != nil {
			break
		}
		r.SeqID = df.seqID
		if err := apply(r); err != nil {
			return err
		}
		off += df.size
	}
	return nil
}
