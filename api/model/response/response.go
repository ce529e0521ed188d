package response

type ErrorResponse struct {
	Err string `json:"err"`
}

type ProcessedEventResponse struct {
	Key               string `json:"key"`
	SourceTxHash      string `json:"sourceTxHash"`
	LogIndex          uint   `json:"logIndex"`
	BlockNumber       uint64 `json:"blockNumber"`
	DestinationTxHash string `json:"destinationTxHash,omitempty"`
	Status            string `json:"status"`
	Simulated         bool   `json:"simulated"`
	RejectReason      string `json:"rejectReason,omitempty"`
}

type PipelineStatusResponse struct {
	PairID           string `json:"pairId"`
	LastScannedBlock uint64 `json:"lastScannedBlock"`
}
