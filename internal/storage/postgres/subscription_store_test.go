package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
)

func TestSubscriptionStore_Insert_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs("u1", uint64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Insert(context.Background(), &model.Subscription{UserID: "u1", ChanID: 1}))
}

func TestSubscriptionStore_Insert_AlreadySubscribed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs("u1", uint64(1)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Insert(context.Background(), &model.Subscription{UserID: "u1", ChanID: 1})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestSubscriptionStore_Delete_NotSubscribed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	mock.ExpectExec(`DELETE FROM subscriptions WHERE user_id=\$1 AND chan_id=\$2`).
		WithArgs("u1", uint64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.Delete(context.Background(), "u1", 1)
	require.ErrorIs(t, err, errs.ErrWrongState)
}

func TestSubscriptionStore_Exists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	rows := pgxmock.NewRows([]string{"one"}).AddRow(1)
	mock.ExpectQuery(`SELECT 1 FROM subscriptions WHERE user_id=\$1 AND chan_id=\$2`).
		WithArgs("u1", uint64(1)).
		WillReturnRows(rows)

	ok, err := s.Exists(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubscriptionStore_CountByChannel(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(uint64(7))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscriptions WHERE chan_id=\$1`).
		WithArgs(uint64(1)).
		WillReturnRows(rows)

	n, err := s.CountByChannel(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), n)
}

func TestSubscriptionStore_ListChannelsByUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSubscriptionStore(db)

	now := time.Now()
	rows := pgxmock.NewRows([]string{"chan_id", "name", "intro", "owner_uid", "owner_name", "owner_did", "created_at", "upd_at", "subs", "next_post_id", "avatar"}).
		AddRow(uint64(1), "news", "daily", "u2", "owner", "did:example:owner", now, now, uint64(4), uint64(9), []byte(nil))
	mock.ExpectQuery(`SELECT c.chan_id, c.name, c.intro, c.owner_uid, c.owner_name, c.owner_did, c.created_at, c.upd_at, c.subs, c.next_post_id, c.avatar\s+FROM channels c\s+JOIN subscriptions s ON s.chan_id = c.chan_id\s+WHERE s.user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(rows)

	got, err := s.ListChannelsByUser(context.Background(), "u1", model.QueryCriteria{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(1), got[0].ChanID)
}
