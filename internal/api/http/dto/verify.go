package dto

type VerifyRequest struct {
	Links    []string `json:"links" binding:"required"`
	CardKeys []string `json:"cardKeys" binding:"required"`
}

type QueryRequest struct {
	CardKey        string `json:"cardKey"`
	VerificationID string `json:"verificationId"`
}

type QueryResponse struct {
	Found       bool   `json:"found"`
	Status      string `json:"status,omitempty"`
	ResultURL   string `json:"resultUrl,omitempty"`
	VerifiedAt  string `json:"verifiedAt,omitempty"`
	CardKeyCode string `json:"cardKeyCode,omitempty"`
}

type StatsResponse struct {
	TodaySuccess int64 `json:"todaySuccess"`
	TodayFail    int64 `json:"todayFail"`
	TodayTotal   int64 `json:"todayTotal"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
