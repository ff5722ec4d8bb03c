package indexer

import "time"

// IntentRecord is the durable row written when an intent is created.
type IntentRecord struct {
	ID              string `gorm:"primaryKey"`
	IntentID        string `gorm:"uniqueIndex;size:66"`
	Wallet          string `gorm:"index;size:42"`
	Asset           string `gorm:"size:42"`
	Name            string
	Recipients      string // comma-joined hex addresses
	Amounts         string // comma-joined decimal amounts
	IntervalSeconds int64
	TotalExecutions uint64
	StartTime       time.Time
	EndTime         time.Time
	Policy          string
	TotalCommitment string
	CreatedAt       time.Time
}

// ExecutionRecord is one completed execution round.
type ExecutionRecord struct {
	ID             string `gorm:"primaryKey"`
	IntentID       string `gorm:"index;size:66"`
	Wallet         string `gorm:"index;size:42"`
	Asset          string `gorm:"size:42"`
	ExecutionIndex uint64
	TotalAmount    string
	FailedAmount   string
	Completed      bool
	ExecutedAt     time.Time

	Transfers []TransferRecord `gorm:"foreignKey:ExecutionID"`
}

// TransferRecord is one recipient's outcome within an execution.
type TransferRecord struct {
	ID          string `gorm:"primaryKey"`
	ExecutionID string `gorm:"index"`
	Recipient   string `gorm:"size:42"`
	Amount      string
	Succeeded   bool
	Reason      string
}

// CancellationRecord is written when an owner cancels an intent.
type CancellationRecord struct {
	ID                  string `gorm:"primaryKey"`
	IntentID            string `gorm:"index;size:66"`
	Wallet              string `gorm:"size:42"`
	ExecutionsPerformed uint64
	RefundedAmount      string
	RecoveredFailed     string
	CancelledAt         time.Time
}
