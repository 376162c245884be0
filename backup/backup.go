// Package backup implements Backup & Recovery (component L, spec §4.10,
// §6.3): atomic persistence of proposer state to a single JSON file, so a
// restart can resume sync_state from the saved cursor instead of replaying
// the whole factory.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/types"
)

// gameRecord is the on-disk shape of one types.Game, flattening
// VkeyCommitments to the top level and naming every field per spec §6.3's
// schema guard. RootClaim is deliberately not persisted: it isn't part of
// the versioned schema, and sync_state re-reads it fresh from the proxy on
// the next ingest.
type gameRecord struct {
	Index                    uint64         `json:"index"`
	Address                  common.Address `json:"address"`
	ParentIndex              uint32         `json:"parent_index"`
	L2Block                  uint64         `json:"l2_block"`
	Status                   uint8          `json:"status"`
	ProposalStatus           uint8          `json:"proposal_status"`
	Deadline                 uint64         `json:"deadline"`
	ShouldAttemptToResolve   bool           `json:"should_attempt_to_resolve"`
	ShouldAttemptToClaimBond bool           `json:"should_attempt_to_claim_bond"`
	AggregationVkey          common.Hash    `json:"aggregation_vkey"`
	RangeVkeyCommitment      common.Hash    `json:"range_vkey_commitment"`
	RollupConfigHash         common.Hash    `json:"rollup_config_hash"`
}

func toRecord(g types.Game) gameRecord {
	return gameRecord{
		Index:                    uint64(g.Index),
		Address:                  g.Address,
		ParentIndex:              g.ParentIndex,
		L2Block:                  g.L2Block,
		Status:                   uint8(g.Status),
		ProposalStatus:           uint8(g.ProposalStatus),
		Deadline:                 g.Deadline,
		ShouldAttemptToResolve:   g.ShouldAttemptToResolve,
		ShouldAttemptToClaimBond: g.ShouldAttemptToClaimBond,
		AggregationVkey:          g.VkeyCommitments.AggregationVkeyHash,
		RangeVkeyCommitment:      g.VkeyCommitments.RangeVkeyCommitment,
		RollupConfigHash:         g.VkeyCommitments.RollupConfigHash,
	}
}

func (r gameRecord) toGame() types.Game {
	return types.Game{
		Index:                    types.GameIndex(r.Index),
		Address:                  r.Address,
		ParentIndex:              r.ParentIndex,
		L2Block:                  r.L2Block,
		Status:                   bindings.GameStatus(r.Status),
		ProposalStatus:           bindings.ProposalStatus(r.ProposalStatus),
		Deadline:                 r.Deadline,
		ShouldAttemptToResolve:   r.ShouldAttemptToResolve,
		ShouldAttemptToClaimBond: r.ShouldAttemptToClaimBond,
		VkeyCommitments: types.VkeyCommitments{
			AggregationVkeyHash:  r.AggregationVkey,
			RangeVkeyCommitment:  r.RangeVkeyCommitment,
			RollupConfigHash:     r.RollupConfigHash,
		},
	}
}

// fileFormat is the on-disk shape of types.Backup (spec §6.3).
type fileFormat struct {
	Version         int          `json:"version"`
	Cursor          *uint64      `json:"cursor"`
	Games           []gameRecord `json:"games"`
	AnchorGameIndex *uint64      `json:"anchor_game_index"`
}

func toFileFormat(b *types.Backup) fileFormat {
	games := make([]gameRecord, len(b.Games))
	for i, g := range b.Games {
		games[i] = toRecord(g)
	}
	var anchor *uint64
	if b.AnchorGameIndex != nil {
		v := uint64(*b.AnchorGameIndex)
		anchor = &v
	}
	return fileFormat{
		Version:         b.Version,
		Cursor:          b.Cursor,
		Games:           games,
		AnchorGameIndex: anchor,
	}
}

func (f fileFormat) toBackup() *types.Backup {
	games := make([]types.Game, len(f.Games))
	for i, r := range f.Games {
		games[i] = r.toGame()
	}
	var anchor *types.GameIndex
	if f.AnchorGameIndex != nil {
		v := types.GameIndex(*f.AnchorGameIndex)
		anchor = &v
	}
	return &types.Backup{
		Version:         f.Version,
		Cursor:          f.Cursor,
		Games:           games,
		AnchorGameIndex: anchor,
	}
}

// Store persists and recovers proposer state to a single JSON file (spec
// §4.10, §6.3).
type Store struct {
	log  log.Logger
	path string
}

// New constructs a Store persisting to path.
func New(l log.Logger, path string) *Store {
	return &Store{log: l, path: path}
}

// Save serializes b and writes it atomically: marshal, write to a sibling
// temp file, fsync, rename over the target (spec §4.10 step "Save"),
// grounded on original_source/fault-proof/src/backup.rs's
// NamedTempFile-then-persist sequence.
func (s *Store) Save(b *types.Backup) error {
	data, err := json.MarshalIndent(toFileFormat(b), "", "  ")
	if err != nil {
		return fmt.Errorf("backup: marshaling: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp")
	if err != nil {
		return fmt.Errorf("backup: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once Rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("backup: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("backup: fsyncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backup: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("backup: renaming into place: %w", err)
	}

	s.log.Debug("proposer state backed up", "path", s.path, "games", len(b.Games))
	return nil
}

// Load reads and validates the backup file (spec §4.10 step "Load"). It
// never returns an error for a missing, unparseable, wrong-version, or
// invalid file — each of those logs a warning and returns (nil, nil) so the
// caller starts fresh, matching the spec's "never fail to start because of
// a bad backup" invariant.
func (s *Store) Load() (*types.Backup, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("no backup found, starting fresh", "path", s.path)
			return nil, nil
		}
		s.log.Warn("failed to read backup, starting fresh", "path", s.path, "err", err)
		return nil, nil
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("failed to parse backup, starting fresh", "path", s.path, "err", err)
		return nil, nil
	}

	if f.Version != types.BackupVersion {
		s.log.Warn("backup version mismatch, starting fresh", "path", s.path, "backup_version", f.Version, "current_version", types.BackupVersion)
		return nil, nil
	}

	b := f.toBackup()
	if err := Validate(b); err != nil {
		s.log.Warn("backup validation failed, starting fresh", "path", s.path, "err", err)
		return nil, nil
	}

	s.log.Info("proposer backup loaded", "path", s.path, "games", len(b.Games))
	return b, nil
}

// Validate checks backup integrity (spec §4.10's Load-time checks):
// a cursor with no games, an anchor referencing a non-existent game, or a
// game whose parent doesn't exist in the backup (and isn't the genesis
// sentinel) are all treated as corruption.
func Validate(b *types.Backup) error {
	if b.Cursor != nil && *b.Cursor > 0 && len(b.Games) == 0 {
		return fmt.Errorf("backup: cursor %d set but no games", *b.Cursor)
	}

	indices := make(map[types.GameIndex]bool, len(b.Games))
	for _, g := range b.Games {
		indices[g.Index] = true
	}

	if b.AnchorGameIndex != nil && !indices[*b.AnchorGameIndex] {
		return fmt.Errorf("backup: anchor game index %d references non-existent game", *b.AnchorGameIndex)
	}

	for _, g := range b.Games {
		if g.ParentIndex != types.NoParent && !indices[types.GameIndex(g.ParentIndex)] {
			return fmt.Errorf("backup: game %d has orphaned parent index %d", g.Index, g.ParentIndex)
		}
	}

	return nil
}
