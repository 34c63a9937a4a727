package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chachabrian/poolit-backend/internal/apperrors"
)

func TestGormStoreUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := s.UserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGormStoreSetPushTokenUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "users" SET "fcm_token"=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetPushToken(context.Background(), 12, "tok-12")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
