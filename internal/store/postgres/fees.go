package postgres

import (
	"encoding/json"

	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

type feeRow struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func feesToJSON(fees []store.Fee) ([]byte, error) {
	rows := make([]feeRow, len(fees))
	for i, f := range fees {
		rows[i] = feeRow{Type: f.Type, Amount: f.Amount.DecimalString(), Description: f.Description}
	}
	return json.Marshal(rows)
}

func feesFromJSON(data []byte, currency money.Currency) ([]store.Fee, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []feeRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	fees := make([]store.Fee, len(rows))
	for i, r := range rows {
		amt, err := money.ParseDecimal(r.Amount, currency)
		if err != nil {
			return nil, err
		}
		fees[i] = store.Fee{Type: r.Type, Amount: amt, Description: r.Description}
	}
	return fees, nil
}
