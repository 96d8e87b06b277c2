package models

// EndpointStat counts requests per (method, endpoint) pair
type EndpointStat struct {
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Requests int64  `json:"requests"`
}
