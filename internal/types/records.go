package types

// TransferRecord is a flat transfer-decision record exported to the analytics sink
type TransferRecord struct {
	DateKey   string  `json:"dateKey" dynamodbav:"DateKey"`     // YYYY-MM-DD (partition key)
	RecordID  string  `json:"recordId" dynamodbav:"RecordID"`   // sort key: RFC3339 timestamp + entry id
	CallID    string  `json:"callId" dynamodbav:"CallID"`
	TeamID    string  `json:"teamId" dynamodbav:"TeamID"`
	Outcome   string  `json:"outcome" dynamodbav:"Outcome"`     // "assigned" or "queued"
	AgentID   string  `json:"agentId" dynamodbav:"AgentID"`
	Priority  int     `json:"priority" dynamodbav:"Priority"`
	Reason    string  `json:"reason" dynamodbav:"Reason"`
	FromBot   bool    `json:"fromBot" dynamodbav:"FromBot"`
	WaitTime  float64 `json:"waitTime" dynamodbav:"WaitTime"`   // seconds in queue before assignment, 0 for immediate
	Bridged   bool    `json:"bridged" dynamodbav:"Bridged"`     // live hand-off side effect succeeded
	Timestamp string  `json:"timestamp" dynamodbav:"Timestamp"` // RFC3339
}

// AgentDailyStats aggregates one agent's day for the analytics sink
type AgentDailyStats struct {
	AgentID        string  `json:"agentId" dynamodbav:"AgentID"` // partition key
	Date           string  `json:"date" dynamodbav:"Date"`       // YYYY-MM-DD (sort key)
	TeamID         string  `json:"teamId" dynamodbav:"TeamID"`
	TotalAssigned  int     `json:"totalAssigned" dynamodbav:"TotalAssigned"`
	TotalCompleted int     `json:"totalCompleted" dynamodbav:"TotalCompleted"`
	AvgWaitTime    float64 `json:"avgWaitTime" dynamodbav:"AvgWaitTime"`     // seconds
	AvgHandleTime  float64 `json:"avgHandleTime" dynamodbav:"AvgHandleTime"` // seconds
	BridgeFailures int     `json:"bridgeFailures" dynamodbav:"BridgeFailures"`
}
