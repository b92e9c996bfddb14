package portal

import (
	"fmt"
	"strings"
)

const txHashPlaceholder = "{txHash}"

// View is the display-ready form of State.
type View struct {
	Balance       string `json:"balance"`
	BalanceLabel  string `json:"balanceLabel"`
	Phase         Phase  `json:"phase"`
	APY           uint64 `json:"apy"`
	APYLabel      string `json:"apyLabel"`
	TVL           uint64 `json:"tvl"`
	TVLLabel      string `json:"tvlLabel"`
	Busy          bool   `json:"busy"`
	ButtonLabel   string `json:"buttonLabel"`
	Status        string `json:"status,omitempty"`
	StatusIsError bool   `json:"statusIsError"`
	TxHash        string `json:"txHash,omitempty"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
}

func (s *Session) View() View {
	return s.opts.Render(s.State())
}

// Render derives display strings from a state snapshot.
func (o Options) Render(st State) View {
	button := "Claim Ticket"
	if st.Busy {
		button = "Processing..."
	}
	v := View{
		Balance:       st.Balance,
		BalanceLabel:  strings.TrimSpace(fmt.Sprintf("Wallet Balance: %s %s", st.Balance, o.TokenSymbol)),
		Phase:         st.Phase,
		APY:           st.APY,
		APYLabel:      fmt.Sprintf("APY Threshold: %d%%", st.APY),
		TVL:           st.TVL,
		TVLLabel:      fmt.Sprintf("TVL Threshold: $%d", st.TVL),
		Busy:          st.Busy,
		ButtonLabel:   button,
		Status:        st.Status,
		StatusIsError: st.StatusIsError,
	}
	if st.Status != "" && st.TxHash != "" {
		v.TxHash = st.TxHash
		v.ExplorerURL = ExplorerURL(o.ExplorerTxURL, st.TxHash)
	}
	return v
}

// ExplorerURL fills the {txHash} placeholder of tmpl, or appends the hash
// when the template has none.
func ExplorerURL(tmpl, txHash string) string {
	if txHash == "" || tmpl == "" {
		return ""
	}
	if strings.Contains(tmpl, txHashPlaceholder) {
		return strings.ReplaceAll(tmpl, txHashPlaceholder, txHash)
	}
	return strings.TrimSuffix(tmpl, "/") + "/" + txHash
}
