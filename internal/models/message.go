package models

// Message is one chat entry. ID is assigned by the message log and is the
// only ordering key: a larger ID was inserted no earlier than a smaller one.
type Message struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Body      string `json:"message" gorm:"column:message;type:text;not null"`
	Author    string `json:"created_by" gorm:"column:created_by;type:text;not null"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the table name stable across drivers
func (Message) TableName() string {
	return "chat"
}

// RangeRequest selects messages with From <= id <= To, newest first.
// A nil To means no upper bound.
type RangeRequest struct {
	From  int64
	To    *int64
	Limit int
}

// Bounded returns a request with an explicit upper bound
func Bounded(from, to int64, limit int) RangeRequest {
	return RangeRequest{From: from, To: &to, Limit: limit}
}

// Unbounded returns a request with no upper bound
func Unbounded(from int64, limit int) RangeRequest {
	return RangeRequest{From: from, Limit: limit}
}

// Empty reports whether no id can satisfy the range
func (r RangeRequest) Empty() bool {
	if r.Limit == 0 {
		return true
	}
	if r.To == nil {
		return false
	}
	return *r.To < 0 || *r.To < r.From
}
