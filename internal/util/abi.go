// Package util holds small shared helpers used by the chain-client layer:
// ABI loading and hex conversion. Adapted from the teacher's internal/util
// (LoadABI/LoadABIFromHardhatArtifact/Hex2Bytes), generalized so it no
// longer assumes a Hardhat-artifact-only workflow.
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads a bare ABI JSON array from path.
func LoadABI(path string) (abi.ABI, error) {
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: open abi file: %w", err)
	}
	defer f.Close()

	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse abi: %w", err)
	}
	return parsed, nil
}

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact this
// loader cares about.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads an ABI embedded in a full Hardhat-style
// build artifact JSON file (which carries bytecode, source maps, etc.
// alongside the "abi" field).
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read artifact file: %w", err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse embedded abi: %w", err)
	}
	return parsed, nil
}

// Hex2Bytes strips an optional "0x" prefix and decodes the remaining hex.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
