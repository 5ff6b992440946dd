package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FixtureClient replays recorded RPC responses from disk. Missing files
// behave like an empty chain rather than an error, so scans degrade to
// "nothing new" when a fixture is absent.
//
// Layout under the fixtures dir:
//
//	signatures/<address>.json    array of SignatureInfo
//	transactions/<signature>.json a TransactionDetail
type FixtureClient struct {
	dir string
}

// NewFixtureClient creates a client reading from dir
func NewFixtureClient(dir string) *FixtureClient {
	return &FixtureClient{dir: dir}
}

// GetSignaturesForAddress loads signatures/<address>.json
func (c *FixtureClient) GetSignaturesForAddress(_ context.Context, address string, limit int) ([]SignatureInfo, error) {
	path := filepath.Join(c.dir, "signatures", address+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var sigs []SignatureInfo
	if err := json.Unmarshal(data, &sigs); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

// GetTransaction loads transactions/<signature>.json
func (c *FixtureClient) GetTransaction(_ context.Context, signature string) (*TransactionDetail, error) {
	path := filepath.Join(c.dir, "transactions", signature+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var tx TransactionDetail
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &tx, nil
}
