package cdr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "cdr:"

// seqBandwidth is how many sequence numbers are leased from badger at a
// time; unreleased leases leave gaps, which the key scheme tolerates.
const seqBandwidth = 128

// BadgerJournal is the persistent, append-only CDR journal. Records are
// keyed `cdr:<call id>:<seq>` with a monotonically increasing sequence so
// a per-call prefix scan yields them in append order.
type BadgerJournal struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string) (*BadgerJournal, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cdr journal: %w", err)
	}

	seq, err := db.GetSequence([]byte("cdr_journal_seq"), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open journal sequence: %w", err)
	}

	return &BadgerJournal{db: db, seq: seq}, nil
}

// Record appends one entry to the journal.
func (j *BadgerJournal) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	seq, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance journal sequence: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return j.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyRecord(rec.CallID, seq), data)
	})
}

// List returns every record journaled for one call, in append order.
func (j *BadgerJournal) List(ctx context.Context, callID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []Record

	err := j.db.View(func(txn *badgerdb.Txn) error {
		prefix := keyCallPrefix(callID)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("corrupt record at %s: %w", it.Item().Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return records, err
}

// Close releases the sequence lease and closes the store.
func (j *BadgerJournal) Close() error {
	if err := j.seq.Release(); err != nil {
		_ = j.db.Close()
		return fmt.Errorf("failed to release journal sequence: %w", err)
	}
	return j.db.Close()
}

func keyRecord(callID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", keyPrefix, callID, seq))
}

func keyCallPrefix(callID string) []byte {
	return []byte(keyPrefix + callID + ":")
}
