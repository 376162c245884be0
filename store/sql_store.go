package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/succinctlabs/op-succinct-go/types"
)

// SQLStore is a database/sql-backed Store (spec §6.2's logical schema). It
// targets any driver that speaks standard placeholder syntax reachable
// through the database/sql interfaces alone, so it is wired against a
// *sql.DB the caller has already opened with whatever driver it prefers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite opens dsn with the modernc.org/sqlite driver (pure Go, no cgo),
// applies Schema, and returns a ready-to-use SQLStore. dsn is passed straight
// through to the driver, so a file path, "file::memory:", or any sqlite DSN
// query parameter the driver supports works.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store %q: %w", dsn, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite store %q: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema to sqlite store %q: %w", dsn, err)
	}
	return NewSQLStore(db), nil
}

// Schema is the DDL this store expects. OpenSQLite applies it; callers of
// NewSQLStore run it (or an equivalent migration) themselves. This package
// does not manage migrations beyond that.
const Schema = `
CREATE TABLE IF NOT EXISTS requests (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	kind                   INTEGER NOT NULL,
	mode                   INTEGER NOT NULL,
	start_block            BIGINT NOT NULL,
	end_block              BIGINT NOT NULL,
	status                 INTEGER NOT NULL,
	proof_network_id       BLOB,
	checkpoint_l1_block    BIGINT,
	checkpoint_l1_hash     BLOB,
	range_vkey_commitment  BLOB NOT NULL,
	aggregation_vkey_hash  BLOB NOT NULL,
	rollup_config_hash     BLOB NOT NULL,
	exec_stats             TEXT,
	created_at             TIMESTAMP NOT NULL,
	updated_at             TIMESTAMP NOT NULL,
	witness_ms             BIGINT,
	exec_ms                BIGINT,
	prove_ms               BIGINT,
	artifact               BLOB,
	prover_address         BLOB,
	relay_tx_hash          BLOB,
	contract_address       BLOB,
	total_txs              BIGINT NOT NULL DEFAULT 0,
	total_gas              BIGINT NOT NULL DEFAULT 0,
	total_l1_fees          TEXT,
	total_tx_fees          TEXT,
	l1_chain_id            BIGINT NOT NULL,
	l2_chain_id            BIGINT NOT NULL,
	l1_head_block          BIGINT,
	failure_reason         TEXT NOT NULL DEFAULT ''
);
`

func (s *SQLStore) CreateRequest(ctx context.Context, req *types.Request) (types.RequestID, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	req.Timing.CreatedAt = now
	req.Timing.UpdatedAt = now

	row, err := marshalRequest(req)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (
			kind, mode, start_block, end_block, status, proof_network_id,
			checkpoint_l1_block, checkpoint_l1_hash,
			range_vkey_commitment, aggregation_vkey_hash, rollup_config_hash,
			exec_stats, created_at, updated_at, witness_ms, exec_ms, prove_ms,
			artifact, prover_address, relay_tx_hash, contract_address,
			total_txs, total_gas, total_l1_fees, total_tx_fees,
			l1_chain_id, l2_chain_id, l1_head_block, failure_reason
		) VALUES (?,?,?,?,?,?, ?,?, ?,?,?, ?,?,?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?)`,
		row.kind, row.mode, row.startBlock, row.endBlock, row.status, row.proofNetworkID,
		row.checkpointL1Block, row.checkpointL1Hash,
		row.rangeVkeyCommitment, row.aggregationVkeyHash, row.rollupConfigHash,
		row.execStats, row.createdAt, row.updatedAt, row.witnessMS, row.execMS, row.proveMS,
		row.artifact, row.proverAddress, row.relayTxHash, row.contractAddress,
		row.totalTxs, row.totalGas, row.totalL1Fees, row.totalTxFees,
		row.l1ChainID, row.l2ChainID, row.l1HeadBlock, row.failureReason,
	)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert request: read generated id: %w", err)
	}
	return types.RequestID(id), nil
}

func (s *SQLStore) GetRequest(ctx context.Context, id types.RequestID) (*types.Request, error) {
	r := s.db.QueryRowContext(ctx, selectColumns+` FROM requests WHERE id = ?`, int64(id))
	req, err := scanRequest(r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *SQLStore) ListRequests(ctx context.Context, filter Filter) ([]*types.Request, error) {
	query := selectColumns + ` FROM requests WHERE 1=1`
	var args []any
	if filter.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, int(*filter.Kind))
	}
	if filter.Mode != nil {
		query += ` AND mode = ?`
		args = append(args, int(*filter.Mode))
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (`
		for i, st := range filter.Statuses {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, int(st))
		}
		query += `)`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*types.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateStatus performs the fetch-mutate-write cycle as a single CAS
// statement: the WHERE clause pins both id and the caller's expected prior
// status, so a concurrent writer that already moved the row causes
// RowsAffected to come back 0 and UpdateStatus to report ErrStaleStatus
// instead of silently clobbering the other writer's transition.
func (s *SQLStore) UpdateStatus(ctx context.Context, id types.RequestID, expectedPrior types.RequestStatus, mutate func(*types.Request)) error {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != expectedPrior {
		return ErrStaleStatus
	}
	mutate(req)
	req.Timing.UpdatedAt = time.Now().UTC()

	row, err := marshalRequest(req)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET
			status = ?, proof_network_id = ?,
			checkpoint_l1_block = ?, checkpoint_l1_hash = ?,
			exec_stats = ?, updated_at = ?, witness_ms = ?, exec_ms = ?, prove_ms = ?,
			artifact = ?, prover_address = ?, relay_tx_hash = ?, contract_address = ?,
			total_txs = ?, total_gas = ?, total_l1_fees = ?, total_tx_fees = ?,
			l1_head_block = ?, failure_reason = ?
		WHERE id = ? AND status = ?`,
		row.status, row.proofNetworkID,
		row.checkpointL1Block, row.checkpointL1Hash,
		row.execStats, row.updatedAt, row.witnessMS, row.execMS, row.proveMS,
		row.artifact, row.proverAddress, row.relayTxHash, row.contractAddress,
		row.totalTxs, row.totalGas, row.totalL1Fees, row.totalTxFees,
		row.l1HeadBlock, row.failureReason,
		int64(id), int(expectedPrior),
	)
	if err != nil {
		return fmt.Errorf("update request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (s *SQLStore) CountInFlight(ctx context.Context, pred func(types.RequestStatus) bool) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status FROM requests`)
	if err != nil {
		return 0, fmt.Errorf("count in flight: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var st int
		if err := rows.Scan(&st); err != nil {
			return 0, err
		}
		if pred(types.RequestStatus(st)) {
			n++
		}
	}
	return n, rows.Err()
}

const selectColumns = `SELECT
	id, kind, mode, start_block, end_block, status, proof_network_id,
	checkpoint_l1_block, checkpoint_l1_hash,
	range_vkey_commitment, aggregation_vkey_hash, rollup_config_hash,
	exec_stats, created_at, updated_at, witness_ms, exec_ms, prove_ms,
	artifact, prover_address, relay_tx_hash, contract_address,
	total_txs, total_gas, total_l1_fees, total_tx_fees,
	l1_chain_id, l2_chain_id, l1_head_block, failure_reason`

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanRequest(r sqlScanner) (*types.Request, error) {
	var (
		id                                               int64
		kind, mode, status                               int
		startBlock, endBlock                             int64
		proofNetworkID                                   []byte
		checkpointL1Block                                sql.NullInt64
		checkpointL1Hash                                  []byte
		rangeVkeyCommitment, aggregationVkeyHash, rollupConfigHash []byte
		execStats                                        sql.NullString
		createdAt, updatedAt                              time.Time
		witnessMS, execMS, proveMS                        sql.NullInt64
		artifact, proverAddress, relayTxHash, contractAddress []byte
		totalTxs, totalGas                                int64
		totalL1Fees, totalTxFees                          sql.NullString
		l1ChainID, l2ChainID                               int64
		l1HeadBlock                                       sql.NullInt64
		failureReason                                     string
	)
	if err := r.Scan(
		&id, &kind, &mode, &startBlock, &endBlock, &status, &proofNetworkID,
		&checkpointL1Block, &checkpointL1Hash,
		&rangeVkeyCommitment, &aggregationVkeyHash, &rollupConfigHash,
		&execStats, &createdAt, &updatedAt, &witnessMS, &execMS, &proveMS,
		&artifact, &proverAddress, &relayTxHash, &contractAddress,
		&totalTxs, &totalGas, &totalL1Fees, &totalTxFees,
		&l1ChainID, &l2ChainID, &l1HeadBlock, &failureReason,
	); err != nil {
		return nil, err
	}

	req := &types.Request{
		ID:             types.RequestID(id),
		Kind:           types.RequestKind(kind),
		Mode:           types.RequestMode(mode),
		StartBlock:     uint64(startBlock),
		EndBlock:       uint64(endBlock),
		Status:         types.RequestStatus(status),
		ProofNetworkID: proofNetworkID,
		VkeyCommitments: types.VkeyCommitments{
			RangeVkeyCommitment: common.BytesToHash(rangeVkeyCommitment),
			AggregationVkeyHash: common.BytesToHash(aggregationVkeyHash),
			RollupConfigHash:    common.BytesToHash(rollupConfigHash),
		},
		Timing: types.Timing{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		Artifact:      artifact,
		RelayTxHash:   nullHash(relayTxHash),
		TotalTxs:      totalTxs,
		TotalGas:      totalGas,
		L1ChainID:     uint64(l1ChainID),
		L2ChainID:     uint64(l2ChainID),
		FailureReason: failureReason,
	}

	if checkpointL1Block.Valid {
		req.CheckpointL1Block = &types.L1Checkpoint{
			Number: uint64(checkpointL1Block.Int64),
			Hash:   common.BytesToHash(checkpointL1Hash),
		}
	}
	if execStats.Valid && execStats.String != "" {
		var stats types.ExecutionStats
		if err := json.Unmarshal([]byte(execStats.String), &stats); err != nil {
			return nil, fmt.Errorf("decode exec_stats: %w", err)
		}
		req.ExecutionStats = stats
	}
	if witnessMS.Valid {
		d := time.Duration(witnessMS.Int64) * time.Millisecond
		req.Timing.WitnessGen = &d
	}
	if execMS.Valid {
		d := time.Duration(execMS.Int64) * time.Millisecond
		req.Timing.Execution = &d
	}
	if proveMS.Valid {
		d := time.Duration(proveMS.Int64) * time.Millisecond
		req.Timing.Proving = &d
	}
	if len(proverAddress) > 0 {
		addr := common.BytesToAddress(proverAddress)
		req.ProverAddress = &addr
	}
	if len(contractAddress) > 0 {
		addr := common.BytesToAddress(contractAddress)
		req.ContractAddress = &addr
	}
	if totalL1Fees.Valid && totalL1Fees.String != "" {
		req.TotalL1Fees, _ = new(big.Int).SetString(totalL1Fees.String, 10)
	}
	if totalTxFees.Valid && totalTxFees.String != "" {
		req.TotalTxFees, _ = new(big.Int).SetString(totalTxFees.String, 10)
	}
	if l1HeadBlock.Valid {
		v := uint64(l1HeadBlock.Int64)
		req.L1HeadBlock = &v
	}

	return req, nil
}

func nullHash(b []byte) *common.Hash {
	if len(b) == 0 {
		return nil
	}
	h := common.BytesToHash(b)
	return &h
}

// sqlRow is the flattened, driver-ready representation of a Request.
type sqlRow struct {
	kind, mode, status                                        int
	startBlock, endBlock                                      int64
	proofNetworkID                                            []byte
	checkpointL1Block                                         sql.NullInt64
	checkpointL1Hash                                          []byte
	rangeVkeyCommitment, aggregationVkeyHash, rollupConfigHash []byte
	execStats                                                 sql.NullString
	createdAt, updatedAt                                      time.Time
	witnessMS, execMS, proveMS                                sql.NullInt64
	artifact, proverAddress, relayTxHash, contractAddress     []byte
	totalTxs, totalGas                                        int64
	totalL1Fees, totalTxFees                                  sql.NullString
	l1ChainID, l2ChainID                                      int64
	l1HeadBlock                                                sql.NullInt64
	failureReason                                             string
}

func marshalRequest(req *types.Request) (*sqlRow, error) {
	row := &sqlRow{
		kind:                int(req.Kind),
		mode:                int(req.Mode),
		status:              int(req.Status),
		startBlock:          int64(req.StartBlock),
		endBlock:            int64(req.EndBlock),
		proofNetworkID:      req.ProofNetworkID,
		rangeVkeyCommitment: req.VkeyCommitments.RangeVkeyCommitment.Bytes(),
		aggregationVkeyHash: req.VkeyCommitments.AggregationVkeyHash.Bytes(),
		rollupConfigHash:    req.VkeyCommitments.RollupConfigHash.Bytes(),
		createdAt:           req.Timing.CreatedAt,
		updatedAt:           req.Timing.UpdatedAt,
		artifact:            req.Artifact,
		totalTxs:            req.TotalTxs,
		totalGas:            req.TotalGas,
		l1ChainID:           req.L1ChainID,
		l2ChainID:           req.L2ChainID,
		failureReason:       req.FailureReason,
	}

	if req.CheckpointL1Block != nil {
		row.checkpointL1Block = sql.NullInt64{Int64: int64(req.CheckpointL1Block.Number), Valid: true}
		row.checkpointL1Hash = req.CheckpointL1Block.Hash.Bytes()
	}
	if req.ExecutionStats != nil {
		b, err := json.Marshal(req.ExecutionStats)
		if err != nil {
			return nil, fmt.Errorf("encode exec_stats: %w", err)
		}
		row.execStats = sql.NullString{String: string(b), Valid: true}
	}
	if req.Timing.WitnessGen != nil {
		row.witnessMS = sql.NullInt64{Int64: req.Timing.WitnessGen.Milliseconds(), Valid: true}
	}
	if req.Timing.Execution != nil {
		row.execMS = sql.NullInt64{Int64: req.Timing.Execution.Milliseconds(), Valid: true}
	}
	if req.Timing.Proving != nil {
		row.proveMS = sql.NullInt64{Int64: req.Timing.Proving.Milliseconds(), Valid: true}
	}
	if req.ProverAddress != nil {
		row.proverAddress = req.ProverAddress.Bytes()
	}
	if req.RelayTxHash != nil {
		row.relayTxHash = req.RelayTxHash.Bytes()
	}
	if req.ContractAddress != nil {
		row.contractAddress = req.ContractAddress.Bytes()
	}
	if req.TotalL1Fees != nil {
		row.totalL1Fees = sql.NullString{String: req.TotalL1Fees.String(), Valid: true}
	}
	if req.TotalTxFees != nil {
		row.totalTxFees = sql.NullString{String: req.TotalTxFees.String(), Valid: true}
	}
	if req.L1HeadBlock != nil {
		row.l1HeadBlock = sql.NullInt64{Int64: int64(*req.L1HeadBlock), Valid: true}
	}

	return row, nil
}

var _ Store = (*SQLStore)(nil)
