package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/models"
	"fintrack/internal/pagination"
	"fintrack/internal/services"
)

const (
	testUserID = "0195d3a0-0000-7000-8000-0000000000aa"
	testTxID   = "0195d3a0-0000-7000-8000-0000000000bb"
)

// --- mock transaction service ---

type mockTransactionService struct {
	createTransactionFn  func(userID string, amount int64, txType models.TransactionType, category, description, date string, tags models.Tags, notes string) (*models.Transaction, error)
	getUserTxFn          func(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	getTransactionByIDFn func(userID, transactionID string) (*models.Transaction, error)
	updateTransactionFn  func(userID, transactionID string, fields services.TransactionUpdateFields) (*models.Transaction, error)
	deleteTransactionFn  func(userID, transactionID string) error
	updatedSinceFn       func(userID string, since int64) ([]models.Transaction, error)
}

func (m *mockTransactionService) CreateTransaction(userID string, amount int64, txType models.TransactionType, category, description, date string, tags models.Tags, notes string) (*models.Transaction, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(userID, amount, txType, category, description, date, tags, notes)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) GetUserTransactions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	if m.getUserTxFn != nil {
		return m.getUserTxFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockTransactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) UpdateTransaction(userID, transactionID string, fields services.TransactionUpdateFields) (*models.Transaction, error) {
	if m.updateTransactionFn != nil {
		return m.updateTransactionFn(userID, transactionID, fields)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) DeleteTransaction(userID, transactionID string) error {
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(userID, transactionID)
	}
	return nil
}

func (m *mockTransactionService) UpdatedSince(userID string, since int64) ([]models.Transaction, error) {
	if m.updatedSinceFn != nil {
		return m.updatedSinceFn(userID, since)
	}
	return nil, nil
}

var _ services.TransactionServicer = (*mockTransactionService)(nil)

func setupTransactionRouter(handler *TransactionHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/transactions", handler.CreateTransaction)
	auth.GET("/transactions", handler.GetUserTransactions)
	auth.GET("/transactions/updated", handler.GetUpdatedSince)
	auth.GET("/transactions/:id", handler.GetTransactionByID)
	auth.PUT("/transactions/:id", handler.UpdateTransaction)
	auth.DELETE("/transactions/:id", handler.DeleteTransaction)
	return r
}

func TestTransactionHandler_CreateTransaction(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		txSvc := &mockTransactionService{
			createTransactionFn: func(userID string, amount int64, txType models.TransactionType, category, _, _ string, _ models.Tags, _ string) (*models.Transaction, error) {
				return &models.Transaction{
					ID: testTxID, UserID: userID,
					Amount: amount, Type: txType, Category: category,
				}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(txSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions",
			`{"amount":5000,"type":"income","category":"salary","date":"2026-03-01"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		tx := result["transaction"].(map[string]interface{})
		if tx["amount"].(float64) != 5000 {
			t.Errorf("expected amount 5000, got %v", tx["amount"])
		}
	})

	t.Run("returns 201 on zero amount", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "POST", "/transactions",
			`{"amount":0,"type":"expense","category":"misc","date":"2026-03-01"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("zero is a legal amount, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("returns 400 on missing amount", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "POST", "/transactions",
			`{"type":"income","category":"salary","date":"2026-03-01"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on invalid type", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "POST", "/transactions",
			`{"amount":100,"type":"transfer","category":"misc","date":"2026-03-01"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on malformed date", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "POST", "/transactions",
			`{"amount":100,"type":"expense","category":"misc","date":"03/01/2026"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		handler := NewTransactionHandler(&mockTransactionService{}, &mockAuditService{})
		r := gin.New()
		r.POST("/transactions", handler.CreateTransaction)

		rec := doRequest(r, "POST", "/transactions",
			`{"amount":100,"type":"expense","category":"misc","date":"2026-03-01"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_GetTransactionByID(t *testing.T) {
	t.Run("returns 404 when not found", func(t *testing.T) {
		txSvc := &mockTransactionService{
			getTransactionByIDFn: func(_, _ string) (*models.Transaction, error) {
				return nil, apperrors.ErrTransactionNotFound
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(txSvc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/transactions/"+testTxID, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_FOUND")
	})

	t.Run("returns 400 on malformed id", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "GET", "/transactions/not-a-uuid", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_UpdateTransaction(t *testing.T) {
	t.Run("passes only provided fields", func(t *testing.T) {
		var captured services.TransactionUpdateFields
		txSvc := &mockTransactionService{
			updateTransactionFn: func(_, _ string, fields services.TransactionUpdateFields) (*models.Transaction, error) {
				captured = fields
				return &models.Transaction{ID: testTxID}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(txSvc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/transactions/"+testTxID, `{"amount":750}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.Amount == nil || *captured.Amount != 750 {
			t.Errorf("expected amount 750, got %v", captured.Amount)
		}
		if captured.Category != nil || captured.Notes != nil {
			t.Error("absent fields must stay nil")
		}
	})

	t.Run("returns 400 on invalid type", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "PUT", "/transactions/"+testTxID, `{"type":"loan"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_DeleteTransaction(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "DELETE", "/transactions/"+testTxID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when not found", func(t *testing.T) {
		txSvc := &mockTransactionService{
			deleteTransactionFn: func(_, _ string) error {
				return apperrors.ErrTransactionNotFound
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(txSvc, &mockAuditService{}))
		rec := doRequest(r, "DELETE", "/transactions/"+testTxID, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestTransactionHandler_GetUpdatedSince(t *testing.T) {
	t.Run("passes since to service", func(t *testing.T) {
		var gotSince int64
		txSvc := &mockTransactionService{
			updatedSinceFn: func(_ string, since int64) ([]models.Transaction, error) {
				gotSince = since
				return []models.Transaction{{ID: testTxID}}, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(txSvc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/transactions/updated?since=12345", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotSince != 12345 {
			t.Errorf("expected since 12345, got %d", gotSince)
		}
	})

	t.Run("returns 400 on negative since", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
		rec := doRequest(r, "GET", "/transactions/updated?since=-1", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
