package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted: "

// decodeRevert extracts a revert string from an RPC error. Structured error
// data wins over the node's message text.
func decodeRevert(err error) string {
	if err == nil {
		return ""
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if raw, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(raw); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, revertPrefix); i >= 0 {
		return strings.TrimSpace(msg[i+len(revertPrefix):])
	}
	return ""
}
