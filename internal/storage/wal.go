package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// WAL file format (spec §6), grounded directly on tinySQL's
// internal/storage/pager/wal.go, which already uses exactly this
// magic+version+CRC framing:
//
//	Directory holds numbered files wal.NNNNNN.
//	File header (36 bytes): [magic 8][version 4][page_size 4][seq 8][reserved 12]
//	Record: [type u8][tx_id u64 LE][lsn u64 LE][table_name_len u32 LE]
//	        [table_name][row_id u64 LE][data_len u64 LE][data][crc32 u32 LE]
//
// CRC32 is computed over every preceding byte of the record (type
// through data, exclusive of the CRC field itself). A failed CRC
// terminates replay of that file (spec §4.9 step 2).

const (
	walMagic      = "HVDBWAL\x00"
	walVersion    = uint32(1)
	walHeaderSize = 36
	walDefaultRotateBytes = 16 * 1024 * 1024
)

// RecordType enumerates the WAL record kinds named in spec §6.
type RecordType uint8

const (
	RecBeginTx RecordType = iota + 1
	RecCommitTx
	RecRollbackTx
	RecInsertRow
	RecDeleteRow
	RecUpdateRow
	RecCreateTable
	RecDropTable
	RecCreateIndex
	RecDropIndex
	RecAlterTableAddColumn
	RecAlterTableDropColumn
	RecAlterTableRenameColumn
	RecCheckpoint
)

// Record is the in-memory form of one WAL entry.
type Record struct {
	Type  RecordType
	TxID  TxID
	LSN   uint64
	Table string
	RowID int64
	Data  []byte
}

func (r Record) encode() []byte {
	tableBytes := []byte(r.Table)
	size := 1 + 8 + 8 + 4 + len(tableBytes) + 8 + 8 + len(r.Data) + 4
	buf := make([]byte, size)
	off := 0
	buf[off] = byte(r.Type)
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.TxID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], r.LSN)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(tableBytes)))
	off += 4
	copy(buf[off:], tableBytes)
	off += len(tableBytes)
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.RowID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(len(r.Data)))
	off += 8
	copy(buf[off:], r.Data)
	off += len(r.Data)
	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf
}

// decodeRecord parses one record from buf, returning the record, the
// number of bytes consumed, and whether the CRC validated. A false crcOK
// means "stop replaying this file from here" per spec §4.9 step 2.
func decodeRecord(buf []byte) (rec Record, n int, crcOK bool, err error) {
	if len(buf) < 1+8+8+4 {
		return Record{}, 0, false, fmt.Errorf("wal: truncated record header")
	}
	off := 0
	rec.Type = RecordType(buf[off])
	off++
	rec.TxID = TxID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	rec.LSN = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	tableLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+tableLen+8+8 {
		return Record{}, 0, false, fmt.Errorf("wal: truncated record body")
	}
	rec.Table = string(buf[off : off+tableLen])
	off += tableLen
	rec.RowID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	dataLen := int(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	if len(buf) < off+dataLen+4 {
		return Record{}, 0, false, fmt.Errorf("wal: truncated record data")
	}
	rec.Data = append([]byte(nil), buf[off:off+dataLen]...)
	off += dataLen
	storedCRC := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	computed := crc32.ChecksumIEEE(buf[:off-4])
	return rec, off, computed == storedCRC, nil
}

// WAL is the single-writer append-only log: one mutex + buffer + file
// handle per spec §5 ("the WAL writer is single-writer").
type WAL struct {
	mu          sync.Mutex
	dir         string
	file        *os.File
	writer      *bufio.Writer
	seq         uint64 // not set by any code path; file headers carry fileIndex as their seq, and genID holds the uuid
	genID       string
	nextLSN     uint64
	bytesInFile int64
	rotateAt    int64
	fileIndex   int
}

// OpenWAL opens (creating if needed) a WAL directory, positioning for
// append at the end of the most recent file.
func OpenWAL(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newErr(KindWalWriteFailed, "mkdir "+dir, err)
	}
	w := &WAL{dir: dir, rotateAt: walDefaultRotateBytes, genID: uuid.NewString(), nextLSN: 1}
	existing, err := listWALFiles(dir)
	if err != nil {
		return nil, newErr(KindWalWriteFailed, "list wal dir", err)
	}
	if len(existing) == 0 {
		if err := w.rotate(); err != nil {
			return nil, err
		}
		return w, nil
	}
	w.fileIndex = existing[len(existing)-1]
	path := walFilePath(dir, w.fileIndex)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, newErr(KindWalWriteFailed, "open wal file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(KindWalWriteFailed, "stat wal file", err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)
	w.bytesInFile = info.Size()
	return w, nil
}

func walFilePath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("wal.%06d", idx))
}

func listWALFiles(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var idxs []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "wal.") {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(e.Name(), "wal.%06d", &idx); err == nil {
			idxs = append(idxs, idx)
		}
	}
	sort.Ints(idxs)
	return idxs, nil
}

func (w *WAL) rotate() error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return newErr(KindWalWriteFailed, "flush before rotate", err)
		}
	}
	if w.file != nil {
		w.file.Close()
	}
	w.fileIndex++
	path := walFilePath(w.dir, w.fileIndex)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return newErr(KindWalWriteFailed, "create wal file", err)
	}
	var hdr [walHeaderSize]byte
	copy(hdr[0:8], walMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], walVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], 0) // page size unused by this row-oriented WAL
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(w.fileIndex))
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return newErr(KindWalWriteFailed, "write wal header", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return newErr(KindWalWriteFailed, "fsync wal header", err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)
	w.bytesInFile = walHeaderSize
	return nil
}

// Append writes one record and fsyncs before returning, per spec
// §4.7 step 4. Returns the assigned LSN.
func (w *WAL) Append(rec Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec.LSN = w.nextLSN
	w.nextLSN++
	buf := rec.encode()

	if w.bytesInFile+int64(len(buf)) > w.rotateAt && w.bytesInFile > walHeaderSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	if _, err := w.writer.Write(buf); err != nil {
		return 0, newErr(KindWalWriteFailed, "append record", err)
	}
	if err := w.writer.Flush(); err != nil {
		return 0, newErr(KindWalWriteFailed, "flush record", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, newErr(KindWalWriteFailed, "fsync record", err)
	}
	w.bytesInFile += int64(len(buf))
	return rec.LSN, nil
}

// Checkpoint appends a checkpoint record. Callers truncate older WAL
// files only after a successful replay (spec §4.9 step 7); truncation
// itself is driven by the recovery path, not by WAL itself.
func (w *WAL) Checkpoint(txID TxID) error {
	_, err := w.Append(Record{Type: RecCheckpoint, TxID: txID})
	return err
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer != nil {
		w.writer.Flush()
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// TruncateOlderThan removes WAL files strictly older than keepFrom
// index, called after a successful checkpoint + replay.
func (w *WAL) TruncateOlderThan(keepFrom int) error {
	existing, err := listWALFiles(w.dir)
	if err != nil {
		return err
	}
	for _, idx := range existing {
		if idx < keepFrom {
			if err := os.Remove(walFilePath(w.dir, idx)); err != nil {
				return err
			}
		}
	}
	return nil
}
