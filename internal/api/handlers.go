package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"library/internal/loans"
	"library/internal/models"
	"library/internal/storage"
)

type createBookRequest struct {
	Title       string `json:"title" binding:"required"`
	TotalCopies int    `json:"total_copies" binding:"required,min=1"`
}

type createMemberRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

type loanRequest struct {
	MemberID     string `json:"member_id" binding:"required"`
	DurationDays int    `json:"duration_days"`
}

type returnRequest struct {
	MemberID string `json:"member_id" binding:"required"`
}

type extendRequest struct {
	AdditionalDays int `json:"additional_days"`
}

// DefaultLoanDays is the loan period applied when a loan request carries none
const DefaultLoanDays = 14

// Health reports liveness
func (s *Server) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// CreateBook registers a new title with all copies available
func (s *Server) CreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := s.db.CreateBook(c.Request.Context(), req.Title, req.TotalCopies)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookJSON(book))
}

// GetBook returns one book
func (s *Server) GetBook(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	book, err := s.db.GetBook(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

// CreateMember registers a new member
func (s *Server) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := s.db.CreateMember(c.Request.Context(), req.Name, req.Email, req.TelegramChatID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    member.ID,
		"name":  member.Name,
		"email": member.Email,
	})
}

// LoanBook lends one copy of the book to a member
func (s *Server) LoanBook(c *gin.Context) {
	bookID, ok := s.pathID(c)
	if !ok {
		return
	}
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid member_id"})
		return
	}
	days := req.DurationDays
	if days == 0 {
		days = DefaultLoanDays
	}

	loan, err := s.loans.CreateLoan(c.Request.Context(), bookID, memberID, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": "Book loaned successfully.",
		"loan":   loanJSON(loan),
	})
}

// ReturnBook closes the member's open loan for the book
func (s *Server) ReturnBook(c *gin.Context) {
	bookID, ok := s.pathID(c)
	if !ok {
		return
	}
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid member_id"})
		return
	}

	loan, err := s.loans.ReturnLoan(c.Request.Context(), bookID, memberID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "Book returned successfully.",
		"loan":   loanJSON(loan),
	})
}

// ExtendDueDate pushes an open loan's due date forward
func (s *Server) ExtendDueDate(c *gin.Context) {
	loanID, ok := s.pathID(c)
	if !ok {
		return
	}
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan, err := s.loans.ExtendDueDate(c.Request.Context(), loanID, req.AdditionalDays)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(loan))
}

func (s *Server) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps domain errors onto HTTP responses
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrBookNotFound),
		errors.Is(err, storage.ErrLoanNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrMemberNotFound):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Member does not exist."})
	case errors.Is(err, storage.ErrOutOfStock):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No available copies."})
	case errors.Is(err, storage.ErrNoActiveLoan):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Active loan does not exist."})
	case errors.Is(err, loans.ErrAlreadyReturned),
		errors.Is(err, loans.ErrAlreadyOverdue),
		errors.Is(err, loans.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func bookJSON(book models.Book) gin.H {
	return gin.H{
		"id":               book.ID,
		"title":            book.Title,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
	}
}

func loanJSON(loan models.Loan) gin.H {
	out := gin.H{
		"id":        loan.ID,
		"book_id":   loan.BookID,
		"member_id": loan.MemberID,
		"loan_date": loan.LoanDate,
		"due_date":  loan.DueDate,
		"returned":  loan.Returned,
	}
	if loan.ReturnDate != nil {
		out["return_date"] = loan.ReturnDate
	}
	return out
}
