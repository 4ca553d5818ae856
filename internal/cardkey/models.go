package cardkey

import "time"

type Status string

const (
	StatusUnused   Status = "UNUSED"
	StatusLocked   Status = "LOCKED"
	StatusConsumed Status = "CONSUMED"
	StatusRevoked  Status = "REVOKED"
	StatusExpired  Status = "EXPIRED"
)

// CardKey is the finite-use resource gating verification attempts.
type CardKey struct {
	Code       string     `json:"code"`
	Status     Status     `json:"status"`
	MaxUses    int        `json:"maxUses"`
	UsedCount  int        `json:"usedCount"`
	LockedAt   *time.Time `json:"lockedAt,omitempty"`
	LockJobID  *string    `json:"lockJobId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	Note       *string    `json:"note,omitempty"`
	BatchNo    *string    `json:"batchNo,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// StatusCounts is the per-status breakdown shown on the admin list.
type StatusCounts struct {
	Total    int64 `json:"total"`
	Unused   int64 `json:"unused"`
	Locked   int64 `json:"locked"`
	Consumed int64 `json:"consumed"`
	Revoked  int64 `json:"revoked"`
	Expired  int64 `json:"expired"`
}

// GenerateOptions control batch key provisioning.
type GenerateOptions struct {
	ExpiresAt *time.Time
	Note      string
	BatchNo   string
	MaxUses   int
}
