package gateway

import "encoding/json"

// Tipos JSON del gateway. Los importes i128 viajan como strings decimales.

type betTotalsJSON struct {
	Count  int    `json:"count"`
	Staked string `json:"staked"`
}

type marketJSON struct {
	ID          uint64          `json:"id"`
	Title       string          `json:"title"`
	Token       string          `json:"token"`
	EndTime     int64           `json:"end_time"` // unix seconds
	IsResolved  bool            `json:"is_resolved"`
	WinningSide json.RawMessage `json:"winning_side"`
	FinalPrice  *string         `json:"final_price"`
	Bets        struct {
		Up     betTotalsJSON `json:"up"`
		Down   betTotalsJSON `json:"down"`
		Stable betTotalsJSON `json:"stable"`
	} `json:"bets"`
}

type marketsResponse struct {
	Markets []marketJSON `json:"markets"`
}

type priceResponse struct {
	Token string  `json:"token"`
	Price *string `json:"price"`
}

type resolveRequest struct {
	Caller     string `json:"caller"`
	FinalPrice string `json:"final_price"` // i128 escalado
}

type resolveResponse struct {
	Success     bool            `json:"success"`
	WinningSide json.RawMessage `json:"winning_side"`
	TxHash      string          `json:"tx_hash"`
	Error       string          `json:"error"`
	ErrorCode   string          `json:"error_code"`
}

type healthResponse struct {
	Status       string `json:"status"`
	LatestLedger uint32 `json:"latest_ledger"`
	ContractID   string `json:"contract_id"`
}
