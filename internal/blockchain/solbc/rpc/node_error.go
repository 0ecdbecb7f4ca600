// internal/blockchain/solbc/rpc/node_error.go
package rpc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Коды JSON-RPC, при которых узел временно не может обслужить запрос:
// слот пропущен, блок ещё не доступен, узел отстаёт от кластера.
var transientNodeCodes = map[int]struct{}{
	-32004: {}, // block not available
	-32005: {}, // node is behind
	-32007: {}, // slot skipped
	-32014: {}, // block status not yet available
	-32016: {}, // minimum context slot not reached
}

// AnchorError ошибка программы на Anchor, извлечённая из логов симуляции
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// NodeError разобранная ошибка JSON-RPC, которую вернул узел
type NodeError struct {
	Code             int          `json:"code"`
	Message          string       `json:"message"`
	SimulationFailed bool         `json:"simulation_failed,omitempty"`
	Logs             []string     `json:"logs,omitempty"`
	InstructionError any          `json:"instruction_error,omitempty"`
	Anchor           *AnchorError `json:"anchor_error,omitempty"`
}

// Transient сообщает, что узел может ответить успешно при повторе
func (n *NodeError) Transient() bool {
	_, ok := transientNodeCodes[n.Code]
	return ok
}

// Summary короткое однострочное описание для логов
func (n *NodeError) Summary() string {
	s := fmt.Sprintf("code %d: %s", n.Code, n.Message)
	if n.Anchor != nil {
		s += fmt.Sprintf(" (anchor %d %s: %s)", n.Anchor.Code, n.Anchor.Name, n.Anchor.Msg)
	}
	return s
}

// AnalyzeNodeError ищет в цепочке err ошибку JSON-RPC узла и разбирает её.
// Для сбоев симуляции извлекаются логи, ошибка инструкции и ошибка Anchor.
func AnalyzeNodeError(err error) (*NodeError, bool) {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || rpcErr == nil {
		return nil, false
	}

	result := &NodeError{Code: rpcErr.Code, Message: rpcErr.Message}
	if !strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		return result, true
	}
	result.SimulationFailed = true

	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return result, true
	}
	if logs, ok := data["logs"].([]interface{}); ok {
		for _, entry := range logs {
			line, ok := entry.(string)
			if !ok {
				continue
			}
			result.Logs = append(result.Logs, line)
			if result.Anchor == nil && strings.Contains(line, "AnchorError occurred") {
				anchor := parseAnchorErrorLog(line)
				result.Anchor = &anchor
			}
		}
	}
	if instrErr, ok := data["err"]; ok && instrErr != nil {
		result.InstructionError = instrErr
	}
	return result, true
}

// parseAnchorErrorLog разбирает строку вида
// "Program log: AnchorError occurred. Error Code: X. Error Number: 101. Error Message: Y."
func parseAnchorErrorLog(line string) AnchorError {
	var result AnchorError
	if v, ok := anchorField(line, "Error Number:"); ok {
		result.Code, _ = strconv.Atoi(v)
	}
	if v, ok := anchorField(line, "Error Code:"); ok {
		result.Name = v
	}
	if v, ok := anchorField(line, "Error Message:"); ok {
		result.Msg = v
	}
	return result
}

func anchorField(line, label string) (string, bool) {
	_, rest, found := strings.Cut(line, label)
	if !found {
		return "", false
	}
	value, _, _ := strings.Cut(rest, ".")
	return strings.TrimSpace(value), true
}
