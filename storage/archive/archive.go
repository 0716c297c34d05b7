// Package archive periodically exports terminal polls (passed, rejected,
// executed) and their votes to columnar parquet files for analytics cold
// storage, separate from the operational KV store in storage.Database and
// the queryable mirror in storage/auditsink. Grounded on the teacher's
// otc-gateway reconciliation exporter (services/otc-gateway/recon/reconciler.go),
// which writes parquetRow structs through xitongsys/parquet-go +
// parquet-go-source/writerfile the same way.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"daogov/native/bank"
	"daogov/native/pollstore"
)

// pollRow is one terminal poll's parquet row.
type pollRow struct {
	Engine      string `parquet:"name=engine, type=BYTE_ARRAY, convertedtype=UTF8"`
	ID          uint64 `parquet:"name=id, type=INT64"`
	Creator     string `parquet:"name=creator, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status      string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title       string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	YesVotes    string `parquet:"name=yes_votes, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoVotes     string `parquet:"name=no_votes, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndHeight   uint64 `parquet:"name=end_height, type=INT64"`
	ExportedAt  string `parquet:"name=exported_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// voteRow is one voter's ballot on a terminal poll.
type voteRow struct {
	Engine  string `parquet:"name=engine, type=BYTE_ARRAY, convertedtype=UTF8"`
	PollID  uint64 `parquet:"name=poll_id, type=INT64"`
	Voter   string `parquet:"name=voter, type=BYTE_ARRAY, convertedtype=UTF8"`
	Vote    string `parquet:"name=vote, type=BYTE_ARRAY, convertedtype=UTF8"`
	Balance string `parquet:"name=balance, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// terminalStatuses are the statuses eligible for archival; in-progress polls
// are still live in the KV store and must not be exported yet.
var terminalStatuses = []pollstore.Status{pollstore.StatusPassed, pollstore.StatusRejected, pollstore.StatusExecuted}

// Export scans engine's poll store for every terminal poll and writes two
// parquet files (polls and votes) under dir, named with the export time so
// repeated runs never clobber a prior export.
func Export(dir, engine string, store *pollstore.Store, now time.Time) (pollsPath, votesPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("archive: create dir: %w", err)
	}

	stamp := now.UTC().Format("20060102T150405Z")
	pollsPath = filepath.Join(dir, fmt.Sprintf("%s-polls-%s.parquet", engine, stamp))
	votesPath = filepath.Join(dir, fmt.Sprintf("%s-votes-%s.parquet", engine, stamp))

	var polls []*pollRow
	var votes []*voteRow

	for _, status := range terminalStatuses {
		var ids []uint64
		opts := pollstore.RangeOpts{Status: status, Limit: maxExportBatch}
		for len(ids) < maxExportBatch {
			page, err := store.Range(opts)
			if err != nil {
				return "", "", fmt.Errorf("archive: range %s: %w", status, err)
			}
			if len(page) == 0 {
				break
			}
			ids = append(ids, page...)
			opts.StartAfter, opts.HasStart = page[len(page)-1], true
		}
		if len(ids) > maxExportBatch {
			ids = ids[:maxExportBatch]
		}
		for _, id := range ids {
			poll, ok, err := store.Get(id)
			if err != nil {
				return "", "", fmt.Errorf("archive: get poll %d: %w", id, err)
			}
			if !ok {
				continue
			}
			polls = append(polls, toPollRow(engine, poll, now))

			voters, err := store.Voters(id)
			if err != nil {
				return "", "", fmt.Errorf("archive: voters %d: %w", id, err)
			}
			for _, voter := range voters {
				info, ok, err := store.GetVoter(id, voter)
				if err != nil {
					return "", "", fmt.Errorf("archive: get voter %d/%s: %w", id, voter, err)
				}
				if !ok {
					continue
				}
				votes = append(votes, toVoteRow(engine, id, voter, info))
			}
		}
	}

	if err := writeParquet(pollsPath, polls, new(pollRow)); err != nil {
		return "", "", err
	}
	if err := writeParquet(votesPath, votes, new(voteRow)); err != nil {
		return "", "", err
	}
	return pollsPath, votesPath, nil
}

// maxExportBatch bounds how many terminal polls a single Export call will
// scan per status; a production deployment with more history than this
// should run Export more often rather than widen the batch indefinitely.
const maxExportBatch = 10_000

func toPollRow(engine string, poll *pollstore.Poll, now time.Time) *pollRow {
	row := &pollRow{
		Engine:     engine,
		ID:         poll.ID,
		Creator:    poll.Creator,
		Status:     poll.Status.String(),
		Title:      poll.Title,
		EndHeight:  poll.EndHeight,
		ExportedAt: now.UTC().Format(time.RFC3339),
	}
	if poll.YesVotes != nil {
		row.YesVotes = poll.YesVotes.String()
	}
	if poll.NoVotes != nil {
		row.NoVotes = poll.NoVotes.String()
	}
	return row
}

func toVoteRow(engine string, pollID uint64, voter bank.Key, info *bank.VoteInfo) *voteRow {
	row := &voteRow{
		Engine: engine,
		PollID: pollID,
		Voter:  string(voter),
		Vote:   info.Vote.String(),
	}
	if info.Balance != nil {
		row.Balance = info.Balance.String()
	}
	return row
}

// writeParquet writes rows (either []*pollRow or []*voteRow) to path using
// schema as the parquet.NewParquetWriter template, matching the teacher's
// writeParquet helper (services/otc-gateway/recon/reconciler.go).
func writeParquet[T any](path string, rows []*T, schema any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("archive: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("archive: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("archive: parquet flush: %w", err)
	}
	return file.Close()
}
