package dto

import (
	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/cardkey"
)

type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type GenerateKeysRequest struct {
	Count     int    `json:"count" binding:"required,min=1,max=100"`
	MaxUses   int    `json:"maxUses" binding:"omitempty,min=1,max=1000"`
	ExpiresAt string `json:"expiresAt"`
	Note      string `json:"note"`
	BatchNo   string `json:"batchNo"`
}

type GenerateKeysResponse struct {
	Codes []string `json:"codes"`
}

type ListKeysResponse struct {
	Keys  []cardkey.CardKey     `json:"keys"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Stats *cardkey.StatusCounts `json:"stats,omitempty"`
}

type KeyActionRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

type ListLogsResponse struct {
	Logs  []admin.AuditEntry `json:"logs"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
