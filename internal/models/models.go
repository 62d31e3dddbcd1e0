package models

import (
	"time"

	"github.com/google/uuid"
)

// Book represents a title in the library catalog
type Book struct {
	ID              uuid.UUID
	Title           string
	TotalCopies     int
	AvailableCopies int
}

// Member represents a registered library member
type Member struct {
	ID             uuid.UUID
	Name           string
	Email          string
	TelegramChatID int64 // 0 when the member has no Telegram channel
}

// Loan represents one lending of a book copy to a member.
// ReturnDate is nil while the loan is open.
type Loan struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	MemberID   uuid.UUID
	LoanDate   time.Time
	DueDate    time.Time
	Returned   bool
	ReturnDate *time.Time
}

// Overdue reports whether the loan is open and past its due date.
func (l Loan) Overdue(now time.Time) bool {
	return !l.Returned && l.DueDate.Before(now)
}

// EventKind identifies what a notification is about
type EventKind string

const (
	EventLoanCreated EventKind = "loan_created"
	EventLoanOverdue EventKind = "loan_overdue"
)

// Recipient is the delivery address of a notification
type Recipient struct {
	Name           string
	Email          string
	TelegramChatID int64
}

// NotificationRequest is the ephemeral unit of work handed to the dispatcher.
// It is rendered by the producer and consumed exactly once.
type NotificationRequest struct {
	Kind      EventKind
	LoanID    uuid.UUID
	Recipient Recipient
	Subject   string
	Body      string
}
