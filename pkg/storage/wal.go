package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	icommon "github.com/chronokv/chronokv/internal/common"
	log "github.com/sirupsen/logrus"
)

// The write ahead log stores one record per write batch so that the contents
// of the memtables can be recovered after a crash.
//
// Record format:
//    length (4 bytes LE) | crc32 of payload (4 bytes LE) | payload
// where the payload is the serialized write batch. A torn record at the tail
// of the log is tolerated during replay; anything after it is discarded.

const walRecordHeaderSize = 8

// walWriter appends batch records to the log file.
type walWriter struct {
	f File

	// err is any error encountered during a previous operation.
	// once set, every subsequent append fails with it.
	err error
}

func newWalWriter(f File) *walWriter {
	return &walWriter{f: f}
}

// append writes one batch payload to the log.
func (w *walWriter) append(payload []byte, sync bool) error {
	if w.err != nil {
		return w.err
	}

	var header [walRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.f.Write(header[:]); err != nil {
		w.err = err
		return err
	}
	if _, err := w.f.Write(payload); err != nil {
		w.err = err
		return err
	}

	if sync {
		if err := w.f.Sync(); err != nil {
			w.err = err
			return err
		}
	}

	return nil
}

func (w *walWriter) close() error {
	return w.f.Close()
}

// walReader reads batch payloads back from a log file.
type walReader struct {
	r io.Reader
}

func newWalReader(r io.Reader) *walReader {
	return &walReader{r: r}
}

// next returns the next batch payload.
// returns io.EOF at the end of the log, including at a torn tail record.
func (r *walReader) next() ([]byte, error) {
	var header [walRecordHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			// torn header at the tail, treat as end of log
			log.Warn("storage::wal: next; torn record header at log tail, discarding")
			return nil, io.EOF
		}
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	checksum := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			log.Warn("storage::wal: next; torn record payload at log tail, discarding")
			return nil, io.EOF
		}
		return nil, err
	}

	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, icommon.NewCorruptRecordError("storage: checksum mismatch in write ahead log record")
	}

	return payload, nil
}
