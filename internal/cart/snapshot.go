package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the serialized form of a Session, stored so a restarted
// terminal can pick its open cart back up.
type Snapshot struct {
	TerminalID     string          `json:"terminalId"`
	Lines          []LineItem      `json:"lines"`
	CustomerID     *string         `json:"customerId,omitempty"`
	ManualDiscount decimal.Decimal `json:"manualDiscount"`
	Redemption     *Redemption     `json:"redemption,omitempty"`
	SavedAt        time.Time       `json:"savedAt"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		TerminalID:     s.terminalID,
		Lines:          s.Lines(),
		CustomerID:     s.CustomerID(),
		ManualDiscount: s.manualDiscount,
		Redemption:     s.Redemption(),
		SavedAt:        time.Now().UTC(),
	}
}

// Restore rebuilds a session from a snapshot and re-applies the discount bounds.
func Restore(snap Snapshot) *Session {
	s := NewSession(snap.TerminalID)
	s.lines = make([]LineItem, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		if line.Quantity > 0 {
			s.lines = append(s.lines, line)
		}
	}
	s.customerID = snap.CustomerID
	s.manualDiscount = snap.ManualDiscount
	s.redemption = snap.Redemption
	s.reconcileDiscounts()
	return s
}

func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSnapshot(raw []byte) (Snapshot, error) {
	var snap Snapshot
	err := json.Unmarshal(raw, &snap)
	return snap, err
}
