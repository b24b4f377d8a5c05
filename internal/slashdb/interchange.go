package slashdb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// interchangeFile is the EIP-3076 slashing-protection interchange format.
// Every numeric field arrives as a quoted decimal string; signing_root is
// an optional 0x-prefixed 32-byte hex string.
type interchangeFile struct {
	Metadata struct {
		InterchangeFormatVersion string `json:"interchange_format_version"`
		GenesisValidatorsRoot    string `json:"genesis_validators_root"`
	} `json:"metadata"`
	Data []struct {
		Pubkey       string `json:"pubkey"`
		SignedBlocks []struct {
			Slot        string `json:"slot"`
			SigningRoot string `json:"signing_root"`
		} `json:"signed_blocks"`
		SignedAttestations []struct {
			SourceEpoch string `json:"source_epoch"`
			TargetEpoch string `json:"target_epoch"`
			SigningRoot string `json:"signing_root"`
		} `json:"signed_attestations"`
	} `json:"data"`
}

func parseDecimal(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal value %q: %w", s, err)
	}

	return v, nil
}

func parseRootHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing_root hex %q: %w", s, err)
	}

	return raw, nil
}

// ImportInterchange seeds watermarks from an EIP-3076 interchange document.
// For every key it takes the maximum signed block slot and the maximum
// signed attestation source/target epochs found across all entries, then
// merges that with whatever watermark the database already holds via
// DB.Import, so a seed file can only raise protection, never lower it.
func (db *DB) ImportInterchange(raw []byte) error {
	var file interchangeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("malformed interchange file: %w", err)
	}

	if file.Metadata.InterchangeFormatVersion != "5" {
		return fmt.Errorf("unsupported interchange format version %q", file.Metadata.InterchangeFormatVersion)
	}

	for _, entry := range file.Data {
		rec := Record{}

		for _, b := range entry.SignedBlocks {
			slot, err := parseDecimal(b.Slot)
			if err != nil {
				return err
			}

			root, err := parseRootHex(b.SigningRoot)
			if err != nil {
				return err
			}

			rec.HighestBlockSlot, rec.HighestBlockRoot = mergeWatermark(rec.HighestBlockSlot, rec.HighestBlockRoot, &slot, root)
		}

		for _, a := range entry.SignedAttestations {
			source, err := parseDecimal(a.SourceEpoch)
			if err != nil {
				return err
			}

			target, err := parseDecimal(a.TargetEpoch)
			if err != nil {
				return err
			}

			root, err := parseRootHex(a.SigningRoot)
			if err != nil {
				return err
			}

			if rec.HighestTargetEpoch == nil || target >= *rec.HighestTargetEpoch {
				rec.HighestSourceEpoch = &source
				rec.HighestTargetEpoch = &target
				rec.HighestAttestationRoot = root
			}
		}

		if err := db.Import(entry.Pubkey, rec); err != nil {
			return fmt.Errorf("failed to import watermark for %s: %w", entry.Pubkey, err)
		}
	}

	return nil
}
