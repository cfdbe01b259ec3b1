package deployments

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// 适配 Foundry broadcast run-latest.json 的最小结构
type broadcastFile struct {
	Transactions []struct {
		Hash            string   `json:"hash"`
		TransactionType string   `json:"transactionType"`
		ContractName    string   `json:"contractName"`
		ContractAddress string   `json:"contractAddress"`
		Arguments       []string `json:"arguments"`
	} `json:"transactions"`
	Receipts []struct {
		TransactionHash string `json:"transactionHash"`
		BlockNumber     string `json:"blockNumber"`
	} `json:"receipts"`
	Timestamp int64 `json:"timestamp"`
}

// ImportBroadcast 把 broadcast 文件中的 CREATE 部署写入 store
//
// names 非空时只导入这些合约名；已有同名记录时跳过（与部署流水线的存在性判断一致）。
func ImportBroadcast(store Store, path string, names []string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read broadcast: %w", err)
	}
	var b broadcastFile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode broadcast JSON: %w", err)
	}

	filter := map[string]struct{}{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			filter[n] = struct{}{}
		}
	}

	blocks := make(map[string]uint64, len(b.Receipts))
	for _, r := range b.Receipts {
		var n uint64
		if _, err := fmt.Sscanf(r.BlockNumber, "0x%x", &n); err == nil {
			blocks[strings.ToLower(r.TransactionHash)] = n
		}
	}

	deployedAt := time.Now().UTC()
	if b.Timestamp > 0 {
		deployedAt = time.UnixMilli(b.Timestamp).UTC()
	}
	runID := uuid.NewString()

	var imported []*Record
	for _, tx := range b.Transactions {
		if tx.TransactionType != "CREATE" || tx.ContractAddress == "" {
			continue
		}
		if len(filter) > 0 {
			if _, ok := filter[tx.ContractName]; !ok {
				continue
			}
		}
		existing, err := store.GetOrNull(tx.ContractName)
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}

		rec := &Record{
			Name:        tx.ContractName,
			Contract:    tx.ContractName,
			Address:     common.HexToAddress(tx.ContractAddress),
			Args:        tx.Arguments,
			TxHash:      common.HexToHash(tx.Hash),
			BlockNumber: blocks[strings.ToLower(tx.Hash)],
			RunID:       runID,
			DeployedAt:  deployedAt,
		}
		if err := store.Save(rec); err != nil {
			return imported, err
		}
		imported = append(imported, rec)
	}

	if len(imported) == 0 {
		return nil, fmt.Errorf("no new CREATE deployments found in %s", path)
	}
	return imported, nil
}
