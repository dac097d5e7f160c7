package model

// BatchStatus represents the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusRunning   BatchStatus = "RUNNING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// RUNNING may be re-entered to resume an interrupted run, and FAILED only towards a retry.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return next == BatchStatusRunning
	case BatchStatusRunning:
		return next == BatchStatusRunning || next == BatchStatusCompleted || next == BatchStatusFailed
	case BatchStatusFailed:
		return next == BatchStatusRunning
	default:
		return false
	}
}

// Batch is one uploaded collection of product records classified together.
type Batch struct {
	BaseModel
	FileName  string      `gorm:"type:varchar(255);column:file_name;not null" json:"fileName"`
	Status    BatchStatus `gorm:"type:varchar(20);column:status;not null;index" json:"status"`
	ItemCount int         `gorm:"column:item_count;not null" json:"itemCount"`
	Attempts  int         `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError *string     `gorm:"type:text;column:last_error" json:"lastError,omitempty"`

	Items []Item `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"-"`
}

func (b *Batch) TableName() string {
	return "batches"
}
