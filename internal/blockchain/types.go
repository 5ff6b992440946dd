package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the read surface the monitor needs from an RPC source.
// Both the live fabric and the fixture reader implement it.
type Client interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error)
}

// RPCRequest is the JSON-RPC 2.0 request format
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 response format
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error format
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// SignatureInfo is one entry from getSignaturesForAddress
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// TransactionDetail is the result of getTransaction (json encoding)
type TransactionDetail struct {
	Slot        uint64    `json:"slot"`
	BlockTime   *int64    `json:"blockTime"`
	Meta        *TxMeta   `json:"meta"`
	Transaction TxPayload `json:"transaction"`
}

// TxMeta carries balance movements and execution metadata
type TxMeta struct {
	Err               interface{}        `json:"err"`
	Fee               uint64             `json:"fee"`
	PreBalances       []uint64           `json:"preBalances"`
	PostBalances      []uint64           `json:"postBalances"`
	PreTokenBalances  []TokenBalance     `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance     `json:"postTokenBalances"`
	InnerInstructions []InnerInstruction `json:"innerInstructions"`
}

// TokenBalance is one SPL token balance snapshot in tx meta
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is the human-scaled token amount
type UITokenAmount struct {
	UIAmount *float64 `json:"uiAmount"`
	Amount   string   `json:"amount"`
	Decimals int      `json:"decimals"`
}

// InnerInstruction groups CPI instructions under one outer instruction
type InnerInstruction struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction references accounts and program by index into accountKeys
type Instruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

// TxPayload is the signed transaction body
type TxPayload struct {
	Signatures []string  `json:"signatures"`
	Message    TxMessage `json:"message"`
}

// TxMessage holds account keys and top-level instructions
type TxMessage struct {
	AccountKeys  []string      `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// InnerInstructionCount returns how many top-level instructions spawned
// CPI groups. Route complexity grades on groups, not nested depth, so a
// deep multi-hop swap does not count several-fold.
func (t *TransactionDetail) InnerInstructionCount() int {
	if t.Meta == nil {
		return 0
	}
	return len(t.Meta.InnerInstructions)
}

// Programs returns the program ids invoked by top-level instructions
func (t *TransactionDetail) Programs() []string {
	keys := t.Transaction.Message.AccountKeys
	seen := make(map[string]bool)
	var programs []string
	for _, ins := range t.Transaction.Message.Instructions {
		if ins.ProgramIDIndex < 0 || ins.ProgramIDIndex >= len(keys) {
			continue
		}
		p := keys[ins.ProgramIDIndex]
		if !seen[p] {
			seen[p] = true
			programs = append(programs, p)
		}
	}
	return programs
}

// Counterparties returns account keys that are neither the wallet nor a program
func (t *TransactionDetail) Counterparties(wallet string) []string {
	programs := make(map[string]bool)
	for _, p := range t.Programs() {
		programs[p] = true
	}
	var out []string
	for _, key := range t.Transaction.Message.AccountKeys {
		if key == wallet || programs[key] {
			continue
		}
		out = append(out, key)
	}
	return out
}
