package notify

import (
	"fmt"
	"time"

	"library/internal/models"
)

// Subjects and bodies are part of the observable contract and must not be
// reworded.
const (
	SubjectLoanCreated = "Book Loaned Successfully"
	SubjectLoanOverdue = "Overdue Book Notification"
)

// LoanCreatedRequest renders the loan confirmation for a member
func LoanCreatedRequest(loan models.Loan, member models.Member, book models.Book) models.NotificationRequest {
	body := fmt.Sprintf("Hello %s,\n\nYou have successfully loaned %q.\nPlease return it by the due date.",
		member.Name, book.Title)
	return models.NotificationRequest{
		Kind:      models.EventLoanCreated,
		LoanID:    loan.ID,
		Recipient: recipient(member),
		Subject:   SubjectLoanCreated,
		Body:      body,
	}
}

// LoanOverdueRequest renders the overdue reminder for a member
func LoanOverdueRequest(loan models.Loan, member models.Member, book models.Book, now time.Time) models.NotificationRequest {
	days := DaysOverdue(loan.DueDate, now)
	body := fmt.Sprintf("Hello %s,\n\nYour loan for the book with title %q is overdue.\nIt was due on %s and is %d day(s) overdue.\nPlease return it.",
		member.Name, book.Title, loan.DueDate.Format("2006-01-02"), days)
	return models.NotificationRequest{
		Kind:      models.EventLoanOverdue,
		LoanID:    loan.ID,
		Recipient: recipient(member),
		Subject:   SubjectLoanOverdue,
		Body:      body,
	}
}

// DaysOverdue counts whole calendar days between the due date and now,
// never negative.
func DaysOverdue(dueDate, now time.Time) int {
	due := dueDate.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	days := int(today.Sub(due) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

func recipient(member models.Member) models.Recipient {
	return models.Recipient{
		Name:           member.Name,
		Email:          member.Email,
		TelegramChatID: member.TelegramChatID,
	}
}
